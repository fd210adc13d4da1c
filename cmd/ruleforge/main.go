// Command ruleforge turns threat intelligence content into reviewed
// detection rules.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/ruleforge/internal/adapters/driving/cli"
	"github.com/custodia-labs/ruleforge/internal/logger"
)

// Set at build time via ldflags.
var (
	version = "dev"
	commit  = ""
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	code := run(ctx)
	stop()
	logger.Sync()
	os.Exit(code)
}

func run(ctx context.Context) int {
	app, err := wire(ctx)
	if err != nil {
		logger.Error("startup failed: %v", err)
		return 1
	}
	defer app.Close()

	cli.SetVersion(version, commit)
	cli.SetServices(app.services)
	if err := cli.Execute(ctx); err != nil {
		return 1
	}
	return 0
}
