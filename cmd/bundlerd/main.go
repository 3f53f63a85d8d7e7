package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/vk/webbundler/internal/config"
	"github.com/vk/webbundler/internal/orchestrator"
	"github.com/vk/webbundler/internal/pkgregistry"
	"github.com/vk/webbundler/internal/transport"
)

// main is the entrypoint for the bundler daemon.
func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the daemon's startup logic for easier testing.
func run(outW io.Writer, args []string) error {
	fs := flag.NewFlagSet("bundlerd", flag.ContinueOnError)
	fs.SetOutput(outW)
	configPath := fs.String("config", "bundlerd.hcl", "path to the server configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	model, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(model.LogLevel, model.LogFormat, outW)
	logger.Info("bundler daemon starting", "listen_addr", model.ListenAddr, "config", *configPath)

	newBundler := func() *orchestrator.Bundler {
		return orchestrator.New(orchestrator.Config{
			Logger: logger,
			Registry: pkgregistry.Config{
				ManifestURL: model.Registry.ManifestURL,
				PackageURLs: model.Registry.PackageURLs,
				Retry: pkgregistry.RetryConfig{
					MaxAttempts: model.Registry.RetryMaxAttempts,
					InitialWait: msToDuration(model.Registry.RetryInitialWaitMs),
					MaxWait:     msToDuration(model.Registry.RetryMaxWaitMs),
					Multiplier:  2.0,
					Jitter:      0.25,
				},
			},
		})
	}

	server := transport.NewServer(logger, newBundler)
	mux := http.NewServeMux()
	mux.Handle("/bundle", server)

	return http.ListenAndServe(model.ListenAddr, mux)
}
