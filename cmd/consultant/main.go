// Command consultant answers workplace safety questions from a directory
// of documents.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/safety-consultant/internal/adapters/driving/cli"
	"github.com/custodia-labs/safety-consultant/internal/app"
)

// version is set at build time via -ldflags "-X main.version=...".
var version string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cli.SetVersion(version)
	err := cli.Execute(ctx, func(configDir string) (cli.Runtime, error) {
		return app.New(configDir)
	})
	stop()
	if err != nil {
		os.Exit(1)
	}
}
