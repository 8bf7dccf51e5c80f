// Command dealerd runs the SEABucks dealer: it serves signed quotes over HTTP and MCP,
// and offers operator commands for rates, quotes, key checks and local settlement runs.
package main

import (
	"fmt"
	"os"

	"github.com/seabucks/dealer/logger"
)

func main() {
	err := newRootCmd().Execute()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
