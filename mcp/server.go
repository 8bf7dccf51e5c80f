// Package mcp exposes quoting and rates as Model Context Protocol tools.
package mcp

import (
	"net/http"

	mcpproto "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	dealerhttp "github.com/seabucks/dealer/http"
)

// Tool names.
const (
	ToolGetQuote  = "get_quote"
	ToolGetRates  = "get_rates"
	ToolGetStatus = "get_dealer_status"
)

// Server wraps an MCP server with the dealer tools registered.
type Server struct {
	mcpServer *mcpserver.MCPServer
	quotes    dealerhttp.QuoteIssuer
	rates     dealerhttp.RateReader
	log       *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// NewServer creates an MCP server offering get_quote, get_rates and get_dealer_status.
func NewServer(name, version string, quotes dealerhttp.QuoteIssuer, rates dealerhttp.RateReader, opts ...Option) *Server {
	s := &Server{
		mcpServer: mcpserver.NewMCPServer(name, version, mcpserver.WithToolCapabilities(false)),
		quotes:    quotes,
		rates:     rates,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer.AddTool(getQuoteTool(), s.handleGetQuote)
	s.mcpServer.AddTool(getRatesTool(), s.handleGetRates)
	s.mcpServer.AddTool(getStatusTool(), s.handleGetStatus)
	return s
}

// Tools returns the tool definitions the server registers.
func Tools() []mcpproto.Tool {
	return []mcpproto.Tool{getQuoteTool(), getRatesTool(), getStatusTool()}
}

// Handler returns the streamable HTTP transport for the server.
func (s *Server) Handler() http.Handler {
	return mcpserver.NewStreamableHTTPServer(s.mcpServer)
}

// GetMCPServer returns the underlying MCP server.
func (s *Server) GetMCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}
