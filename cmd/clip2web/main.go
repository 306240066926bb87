// clip2web: turn copied images into file paths.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/clip2web/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "clip2web",
		Short: "Replace copied images with the path of a saved file",
		Long: `clip2web joins the clipboard viewer chain and watches for copied images.
Each image is saved to a scratch directory and the clipboard is replaced with
the absolute path of the saved file, ready to paste into a web upload form.

Run "clip2web run" to start the agent. Use "clip2web status" and
"clip2web last" to query a running agent, and "clip2web snap" to save the
current clipboard image once without running an agent.

Config file search order (first found wins):
  /etc/clip2web/clip2web.toml
  $HOME/.config/clip2web/clip2web.toml
  path supplied via --config

All flags can be set via CLIP2WEB_<FLAG> env vars or config-file keys.
See "clip2web run --help" for the full flag reference.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newRunCmd(),
		newSnapCmd(),
		newStatusCmd(),
		newLastCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("clip2web %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
