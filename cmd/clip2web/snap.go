package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clip2web/internal/agent"
	"go.klb.dev/clip2web/internal/clip"
	"go.klb.dev/clip2web/internal/ipc"
	"go.klb.dev/clip2web/internal/message"
)

func newSnapCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "snap",
		Short: "Save the current clipboard image once",
		Long: `Saves the image currently on the clipboard into --dir, replaces the
clipboard with the saved path and prints it. Exits non-zero when the clipboard
holds no image.

If an agent is running the request is sent to it over the IPC socket and the
agent's --dir applies. Otherwise the image is saved by this process; where the
clipboard is served by the writing process (X11) snap stays running until
another application replaces the path or --hold expires.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runSnap(cmd.Context(), v) },
	}

	addStoreFlags(cmd)
	cmd.Flags().Duration("hold", 2*time.Minute, "how long to keep serving the path when this process owns the clipboard")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runSnap(parent context.Context, v *viper.Viper) error {
	setupLogging(v)

	if ipc.IsRunning() {
		resp, err := ipc.Request(&message.Message{Type: message.TypeSnap})
		if err != nil {
			return err
		}
		fmt.Println(resp.Path)
		return nil
	}

	store, err := newStore(v)
	if err != nil {
		return err
	}
	backend := clip.New()
	defer backend.Close()

	a := agent.New(backend, store, agent.Options{Version: Version})
	ref, ok, err := a.Snap()
	if err != nil {
		if ok {
			// Saved, but the clipboard still holds the image.
			fmt.Println(ref.Path)
		}
		return err
	}
	if !ok {
		return errors.New("clipboard holds no image")
	}
	fmt.Println(ref.Path)

	if o, isOwner := backend.(clip.Owner); isOwner {
		if parent == nil {
			parent = context.Background()
		}
		ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
		defer stop()
		holdClipboard(ctx, o, v.GetDuration("hold"))
	}
	return nil
}

// holdClipboard keeps the process, and with it the clipboard text it
// serves, alive until the text is replaced, d passes, or ctx is done.
func holdClipboard(ctx context.Context, o clip.Owner, d time.Duration) {
	replaced := o.Overwritten()
	if replaced == nil || d <= 0 {
		return
	}
	slog.Debug("serving clipboard until replaced", "timeout", d)

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-replaced:
		slog.Debug("clipboard replaced by another application")
	case <-t.C:
		slog.Debug("clipboard hold expired")
	case <-ctx.Done():
	}
}
