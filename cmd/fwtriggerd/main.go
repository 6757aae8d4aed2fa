// cmd/fwtriggerd/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/colebrumley/fwtrigger/internal/daemon"
	"github.com/colebrumley/fwtrigger/internal/mcp"
	"golang.org/x/sync/errgroup"
)

func defaultConfigPath() string {
	if p := os.Getenv("FWTRIGGER_CONFIG"); p != "" {
		return p
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "fwtrigger.yaml"
	}
	return filepath.Join(homeDir, ".config", "fwtrigger", "config.yaml")
}

func main() {
	mode := "run"
	if len(os.Args) > 1 {
		mode = os.Args[1]
	}

	var err error
	switch mode {
	case "run":
		err = runDaemon()
	case "mcp-server":
		err = runMCPServer()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\nusage: fwtriggerd [run|mcp-server]\n", mode)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "daemon error: %v\n", err)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived shutdown signal")
		cancel()
	}()
	return ctx, cancel
}

// runDaemon runs every trigger until a signal arrives, serving MCP over
// HTTP as well when the configuration enables it.
func runDaemon() error {
	d := daemon.New(defaultConfigPath())
	if err := d.Init(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })

	if cfg := d.Config().MCP; cfg.Enabled {
		server := mcp.NewServer(d)
		g.Go(func() error {
			select {
			case <-d.Ready():
			case <-gctx.Done():
				return nil
			}
			d.Logger().Info("MCP HTTP server listening", "address", cfg.ListenAddress)
			if err := server.RunHTTP(gctx, cfg.ListenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("MCP HTTP server: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// runMCPServer runs the triggers in-process and serves MCP on stdio. The
// daemon stops when the client disconnects.
func runMCPServer() error {
	d := daemon.New(defaultConfigPath())
	if err := d.Init(); err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		select {
		case <-d.Ready():
		case <-gctx.Done():
			return nil
		}
		if err := mcp.NewServer(d).Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP server: %w", err)
		}
		return nil
	})

	return g.Wait()
}
