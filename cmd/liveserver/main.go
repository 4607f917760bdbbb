package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/matthewmueller/liveserver"
	"github.com/pkg/browser"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newCommand(run).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("liveserver: %v", err))
		stop()
		os.Exit(1)
	}
}

// newCommand builds the root command. run is called with the layered config.
func newCommand(run func(context.Context, liveserver.Config) error) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "liveserver [root]",
		Short: "Serve a directory and reload the browser when it changes",
		Long: `liveserver serves a directory over HTTP, injects a small script into every
HTML page and reloads connected browsers whenever a file under the directory
changes.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v, args)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	defaults := liveserver.DefaultConfig()
	flags := cmd.Flags()
	flags.Int("port", defaults.Port, "port to listen on")
	flags.String("host", defaults.Host, "address to bind to")
	flags.String("root", defaults.Root, "directory to serve")
	flags.Bool("open", false, "open the browser once started")
	flags.String("log-level", defaults.LogLevel.String(), "silent, errors, info or debug (or 0-3)")
	flags.Duration("wait", defaults.Wait, "wait for changes to settle before reloading")
	flags.StringSlice("ignore", nil, "gitignore-style patterns to ignore, relative to root")
	flags.String("entry-file", "", "serve this file in place of missing paths (single-page apps)")
	flags.Bool("no-listing", false, "disable directory listings")
	flags.Bool("no-css-inject", false, "reload the page on stylesheet changes")
	v.BindPFlags(flags)
	return cmd
}

// loadConfig layers flags over LIVESERVER_* environment variables (a .env
// file is loaded first) over an optional .liveserver.yaml
func loadConfig(v *viper.Viper, args []string) (liveserver.Config, error) {
	cfg := liveserver.DefaultConfig()
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("unable to load .env: %w", err)
	}
	v.SetEnvPrefix("liveserver")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	v.SetConfigName(".liveserver")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return cfg, fmt.Errorf("unable to read config: %w", err)
		}
	}
	level, err := liveserver.ParseLogLevel(v.GetString("log-level"))
	if err != nil {
		return cfg, &liveserver.ConfigError{Field: "logLevel", Err: err}
	}
	cfg.Port = v.GetInt("port")
	cfg.Host = v.GetString("host")
	cfg.Root = v.GetString("root")
	if len(args) > 0 {
		cfg.Root = args[0]
	}
	cfg.Open = v.GetBool("open")
	cfg.LogLevel = level
	cfg.Wait = v.GetDuration("wait")
	cfg.Ignore = v.GetStringSlice("ignore")
	cfg.File = v.GetString("entry-file")
	cfg.NoListing = v.GetBool("no-listing")
	cfg.NoCSSInject = v.GetBool("no-css-inject")
	return cfg, nil
}

func run(ctx context.Context, cfg liveserver.Config) error {
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.LogLevel.Slog(),
	}))
	server, err := liveserver.New(log, cfg)
	if err != nil {
		return err
	}
	cfg = server.Config()
	if cfg.LogLevel >= liveserver.LogInfo {
		fmt.Printf("%s %s %s %s\n",
			color.GreenString("Serving"),
			color.CyanString("%q", cfg.Root),
			color.GreenString("at"),
			color.CyanString("%s", cfg.URL()),
		)
	}
	if cfg.Open {
		go func() {
			select {
			case <-ctx.Done():
			case <-server.Ready():
				if err := browser.OpenURL(cfg.URL()); err != nil {
					log.Warn("liveserver: unable to open browser", "error", err)
				}
			}
		}()
	}
	if err := server.ListenAndServe(ctx); err != nil {
		return err
	}
	log.Info("liveserver: stopped")
	return nil
}
