package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/danmuck/heritagectl/internal/app"
	"github.com/danmuck/heritagectl/internal/config"
	"github.com/danmuck/heritagectl/internal/heritage"
	"github.com/danmuck/heritagectl/internal/logging"
	"github.com/danmuck/heritagectl/internal/observability"
	"github.com/danmuck/heritagectl/internal/store"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultConfigPath = "heritage.toml"

func rootCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:           "heritagectl",
		Short:         "Community collector for Telugu heritage contributions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.ConfigureRuntime()
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to TOML config (defaults apply when empty)")

	cmd.AddCommand(serveCmd(&configPath))
	cmd.AddCommand(configCmd(&configPath))
	cmd.AddCommand(exportCmd(&configPath))
	cmd.AddCommand(recentCmd(&configPath))
	return cmd
}

func serveCmd(configPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the contribution HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Addr = addr
			}
			observability.InitLogger(cfg.Name)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			svc, err := app.NewService(ctx, cfg)
			if err != nil {
				return err
			}
			return svc.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address override")
	return cmd
}

func configCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate, validate, or print configuration",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default config template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := defaultConfigPath
			if len(args) == 1 {
				target = args[0]
			}
			if err := config.WriteTemplate(target, force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote config template to %s\n", target)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	validateCmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := *configPath
			if path == "" {
				path = defaultConfigPath
			}
			if _, err := config.Load(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "validated config at %s\n", path)
			return nil
		},
	}

	var reveal bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			out, err := config.Marshal(cfg, reveal)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	showCmd.Flags().BoolVar(&reveal, "reveal", false, "include the write token")

	cmd.AddCommand(initCmd, validateCmd, showCmd)
	return cmd
}

func exportCmd(configPath *string) *cobra.Command {
	var (
		format string
		kind   string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Dump stored contributions as YAML or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := store.Query{}
			if kind != "" {
				k, err := heritage.ParseKind(kind)
				if err != nil {
					return err
				}
				q.Kind = k
			}
			return withStore(cmd.Context(), *configPath, func(_ config.Config, st store.Store) error {
				items, err := st.List(cmd.Context(), q)
				if err != nil {
					return err
				}
				return writeExport(cmd.OutOrStdout(), format, items)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "output format: yaml|json")
	cmd.Flags().StringVar(&kind, "kind", "", "only export one kind")
	return cmd
}

func recentCmd(configPath *string) *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Print the most recent contributions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), *configPath, func(cfg config.Config, st store.Store) error {
				limit := n
				if !cmd.Flags().Changed("number") {
					limit = cfg.Browse.RecentDefault
				}
				items, err := st.Recent(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "No contributions yet. Be the first to share!")
					return nil
				}
				for _, item := range items {
					fmt.Fprintf(out, "%s  %-8s  %s\n", item.Date, item.Kind, heritage.Heading(item))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "number", "n", store.DefaultRecent, "how many contributions to show (defaults to browse.recent_default)")
	return cmd
}

func loadConfig(path string) (config.Config, error) {
	if strings.TrimSpace(path) == "" {
		cfg := config.Default()
		config.ApplyEnv(&cfg, os.Getenv)
		return cfg, nil
	}
	return config.Load(path)
}

func withStore(ctx context.Context, configPath string, fn func(config.Config, store.Store) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, store.Options{Driver: cfg.Store.Driver, Path: cfg.Store.Path})
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

func writeExport(w io.Writer, format string, items []heritage.Contribution) error {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(items); err != nil {
			return fmt.Errorf("export yaml: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	default:
		return fmt.Errorf("unsupported export format %q (expected yaml or json)", format)
	}
}
