package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clip2web/internal/agent"
	"go.klb.dev/clip2web/internal/clip"
	"go.klb.dev/clip2web/internal/ipc"
	"go.klb.dev/clip2web/internal/sink"
	"go.klb.dev/clip2web/internal/viewer"
)

func newRunCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch the clipboard and replace copied images with saved file paths",
		Long: `Joins the clipboard viewer chain and runs until interrupted. Every copied
image is saved into --dir and the clipboard is replaced with the file's
absolute path. Clipboard changes are always passed on to the other viewers in
the chain, and the chain is left cleanly on exit.

The agent answers "clip2web status" and "clip2web last" on a local IPC socket
unless --no-ipc is set.

Precedence (lowest → highest): defaults → config file → CLIP2WEB_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runAgent(cmd.Context(), v) },
	}

	f := cmd.Flags()
	addStoreFlags(cmd)
	f.String("label", sink.DefaultLabel, "title of the completion notification")
	f.Bool("no-ipc", false, "do not answer status requests on the IPC socket")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runAgent(parent context.Context, v *viper.Viper) error {
	setupLogging(v)

	store, err := newStore(v)
	if err != nil {
		return err
	}

	backend := clip.New()
	defer backend.Close()

	a := agent.New(backend, store, agent.Options{
		Label:   v.GetString("label"),
		Version: Version,
	})

	slog.Info("clip2web starting",
		"version", Version,
		"backend", backend.Name(),
		"dir", store.Dir(),
		"format", v.GetString("format"),
	)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !v.GetBool("no-ipc") {
		ln, err := ipc.Listen()
		if err != nil {
			slog.Warn("IPC socket unavailable", "err", err)
		} else {
			slog.Info("IPC socket listening", "path", ipc.SocketPath())
			go func() {
				if err := ipc.Serve(ctx, ln, a.Handle); err != nil {
					slog.Warn("IPC server stopped", "err", err)
				}
			}()
		}
	}

	if err := viewer.Run(ctx, backend, a.Bind); err != nil {
		return fmt.Errorf("clipboard viewer: %w", err)
	}
	slog.Info("clip2web stopped")
	return nil
}
