package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/seabucks/dealer"
	"github.com/seabucks/dealer/encoding"
)

// SignedQuoteHeader carries a base64 bearer-encoded signed quote.
const SignedQuoteHeader = "X-SIGNED-QUOTE"

type contextKey string

// SignedQuoteContextKey holds the decoded dealer.SignedQuote in the request context.
const SignedQuoteContextKey = contextKey("signed-quote")

// SignedQuoteFromContext returns the quote stored by RequireSignedQuote.
func SignedQuoteFromContext(ctx context.Context) (dealer.SignedQuote, bool) {
	sq, ok := ctx.Value(SignedQuoteContextKey).(dealer.SignedQuote)
	return sq, ok
}

// RequireSignedQuote decodes the X-SIGNED-QUOTE header and stores the quote in the
// request context. Requests without a well-formed header get 400. OPTIONS requests pass
// through for CORS preflight.
func RequireSignedQuote(log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get(SignedQuoteHeader)
			if header == "" {
				log.Warn("http.signed_quote_missing", zap.String("path", r.URL.Path))
				writeError(w, dealer.NewDealerError(dealer.ErrCodeInvalidRequest, SignedQuoteHeader+" header is required", dealer.ErrInvalidRequest))
				return
			}

			sq, err := encoding.DecodeSignedQuote(header)
			if err != nil {
				log.Warn("http.signed_quote_malformed", zap.Error(err))
				writeError(w, dealer.NewDealerError(dealer.ErrCodeInvalidRequest, "malformed "+SignedQuoteHeader+" header", err))
				return
			}

			ctx := context.WithValue(r.Context(), SignedQuoteContextKey, sq)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger writes one structured access-log line per request.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				log.Info("http.request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
