package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Zereker/netlib"
)

var (
	configPath string
	listenAddr string
)

func main() {
	command := &cobra.Command{
		Use:   "echo",
		Short: "Echo every CRLF-terminated line back to its sender",
		RunE:  run,
	}
	command.Flags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	command.Flags().StringVarP(&listenAddr, "addr", "a", "127.0.0.1:12345", "listen address")

	if err := command.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	var opts []netlib.Option
	addr := listenAddr

	if configPath != "" {
		cfg, err := netlib.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if opts, err = cfg.Options(); err != nil {
			return err
		}
		if cfg.Address != "" && !cmd.Flags().Changed("addr") {
			addr = cfg.Address
		}
	}

	server, err := netlib.Listen(addr, opts...)
	if err != nil {
		return err
	}

	// Handle graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go echo(ctx, server)

	slog.Info("server start", "addr", server.Addr())
	if err = server.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// echo sends every complete line back. A connection holding only part of a line is
// given a one-shot watermark one byte past what it holds, so it turns readable again
// only when more data arrives.
func echo(ctx context.Context, server *netlib.Server) {
	for {
		ids, err := server.WaitReadable(ctx)
		if err != nil {
			return
		}

		for _, id := range ids {
			for {
				line, ok := server.GetLine(id)
				if !ok {
					break
				}
				if err = server.Send(id, line); err != nil {
					slog.Debug("echo failed", "conn", id, "error", err.Error())
					break
				}
			}

			if n := server.Buffered(id); n > 0 {
				if err = server.SetTarget(id, n+1, false); err != nil {
					slog.Warn("line too long", "conn", id, "buffered", n)
					_ = server.Disconnect(id)
				}
			}
		}
	}
}
