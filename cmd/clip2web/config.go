package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clip2web/internal/logging"
	"go.klb.dev/clip2web/internal/sink"
)

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and CLIP2WEB_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → CLIP2WEB_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("clip2web")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/clip2web/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(fmt.Sprintf("%s/.config/clip2web", home))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("CLIP2WEB")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for service, debug for interactive)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// addStoreFlags adds the flags that control where and how snapshots are saved.
func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("dir", defaultDir(), "scratch directory for saved images")
	f.String("format", string(sink.EncodingPNG), "image file format: png|jpeg|bmp|tiff")
	f.Int("jpeg-quality", sink.DefaultJPEGQuality, "JPEG quality 1-100")
	f.String("prefix", sink.DefaultPrefix, "file name prefix")
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	interactive := v.GetBool("no-background") || logging.IsTTY(os.Stderr)
	resolveLogging(interactive, v.GetString("log-format"), v.GetString("log-level"))
}

// newStore builds the snapshot store from the store flags.
func newStore(v *viper.Viper) (*sink.FileStore, error) {
	enc, err := sink.ParseEncoding(v.GetString("format"))
	if err != nil {
		return nil, err
	}
	return sink.NewFileStore(sink.Options{
		Dir:         v.GetString("dir"),
		Encoding:    enc,
		JPEGQuality: v.GetInt("jpeg-quality"),
		Prefix:      v.GetString("prefix"),
	})
}

func defaultDir() string {
	return filepath.Join(os.TempDir(), "clip2web")
}
