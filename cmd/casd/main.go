// Package main implements casd, the CAS engine's HTTP daemon (§4.L, §6).
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/brinevault/brine/internal/ratelimit"
	"github.com/brinevault/brine/internal/reaper"
	"github.com/brinevault/brine/pkg/auth"
	"github.com/brinevault/brine/pkg/blobstore"
	"github.com/brinevault/brine/pkg/cas"
	"github.com/brinevault/brine/pkg/config"
	"github.com/brinevault/brine/pkg/depot"
	"github.com/brinevault/brine/pkg/httpapi"
	"github.com/brinevault/brine/pkg/logging"
	"github.com/brinevault/brine/pkg/ownership"
	"github.com/brinevault/brine/pkg/tokens"
)

// Build-time variables set by ldflags.
var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			printVersion()
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(logging.Options{})

	blobs := blobstore.NewMemory()
	owned := ownership.NewMemory()
	tokenSt := tokens.NewMemory()
	depots := depot.NewRegistry()
	delegated := auth.NewDelegated(cfg.DelegatedAuthURL, 5)
	authn := auth.NewAuthenticator(tokenSt, delegated)
	admitter := cas.NewAdmitter(blobs, owned, cfg.NodeLimit, cfg.MaxNameBytes)
	limiter := ratelimit.New(ratelimit.Config{
		Capacity: cfg.RateLimitCapacity,
		Refill:   cfg.RateLimitRefill,
	})

	sweeper := reaper.New(cfg.ReaperInterval, tokenSt, delegated, limiter)
	sweeper.Start()
	defer sweeper.Stop()

	server := httpapi.NewServer(httpapi.Deps{
		Authn:     authn,
		Delegated: delegated,
		Admitter:  admitter,
		Blobs:     blobs,
		Owned:     owned,
		Depots:    depots,
		Tokens:    tokenSt,
		Limiter:   limiter,
		Logger:    logger,
		Config:    cfg,
	})

	logger.Info("casd starting", "version", version, "listen_addr", cfg.ListenAddr)
	if err := http.ListenAndServe(cfg.ListenAddr, server.Routes()); err != nil {
		return fmt.Errorf("http server exited: %w", err)
	}
	return nil
}

func printVersion() {
	fmt.Printf("casd %s\n", version)
	fmt.Printf("Built: %s\n", buildTime)
}

func printUsage() {
	fmt.Printf(`casd v%s - content-addressable storage daemon

Usage:
  casd [command]

Commands:
  (none)    Start the daemon, reading configuration from the environment
  version   Show version information
  help      Show this help message

Configuration is read from CAS_* environment variables (optionally backed by
a .env file in the working directory); see pkg/config for the full list and
their defaults.
`, version)
}
