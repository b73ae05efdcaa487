// Command agentrag is the entry point for the agentrag RAG orchestration
// backend. It provides a CLI interface (via Cobra) and the HTTP API server.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/54b3r/agentrag-go/cmd/agentrag/commands"
)

func main() {
	if err := commands.NewRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
