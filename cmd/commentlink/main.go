// Command commentlink builds and resolves shareable links to social media
// comments.
//
// Usage:
//
//	commentlink open <url>                        # browser session until interrupted
//	commentlink serve                             # HTTP API + browser sessions
//	commentlink mcp                               # MCP server on stdio
//	commentlink share --url <page> --text <text>  # build a share link
//	commentlink parse <link>                      # decode a share link
//	commentlink scan <file> --url <page>          # list comments of saved HTML
//	commentlink resolve <file> --link <link>      # resolve a link offline
//	commentlink decorate <file> --url <page>      # add share buttons to saved HTML
//	commentlink probe <file|url>                  # suggest selectors
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
