// Command dz harvests videos, repositories and articles into a knowledge
// base and answers questions over it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/audiovideoron/distillyzer/internal/adapters/driven/config/file"
	"github.com/audiovideoron/distillyzer/internal/adapters/driving/cli"
	"github.com/audiovideoron/distillyzer/internal/core/domain"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitError   = 1
	exitPartial = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetVersion(version)

	cfg, err := file.NewConfigStore("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}
	cli.SetConfigStore(cfg)
	cli.SetBootstrap(func(ctx context.Context) (*cli.Services, func(), error) {
		return newServices(ctx, cfg, os.Getenv, progressTo(os.Stderr))
	})

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

// exitCode maps an error to the process exit status. A harvest that stored
// some units but not all exits with 2 so scripts can tell it from a crash.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, domain.ErrPartialHarvest):
		return exitPartial
	default:
		return exitError
	}
}
