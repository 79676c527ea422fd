// Command admin 运维命令：迁移、outbox 重放、平台设置与用户管理
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"careerhub/internal/app"
	"careerhub/internal/config"
	"careerhub/internal/service/auth"
	"careerhub/migrations"
	pkgconfig "careerhub/pkg/config"
	"careerhub/pkg/db"
	"careerhub/pkg/logger"
)

var configDir string

func main() {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "careerhub operations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configDir, "config-dir", pkgconfig.GetEnv("CONFIG_DIR", "config"), "directory holding base.yaml and <env>.yaml")

	root.AddCommand(migrateCmd(), outboxCmd(), settingsCmd(), usersCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	_ = godotenv.Load(filepath.Join(configDir, "secrets.env"))
	cfg, err := config.Load(configDir)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.New(cfg.Log.Mode, cfg.Log.Level), nil
}

// withApp 装配完整依赖；命令结束后释放连接
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, zl, err := loadConfig()
	if err != nil {
		return err
	}
	defer zl.Sync()
	if cfg.Storage.Driver == config.StorageMemory {
		return fmt.Errorf("admin commands need persistent storage, storage.driver is %q", cfg.Storage.Driver)
	}
	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, zl, err := loadConfig()
			if err != nil {
				return err
			}
			defer zl.Sync()

			pool, err := db.NewConnection(cfg.DB, zl)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := db.Migrate(cmd.Context(), pool, migrations.FS, zl)
			if err != nil {
				return err
			}
			fmt.Printf("applied %d migration(s)\n", applied)
			return nil
		},
	}
}

func outboxCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "outbox", Short: "Inspect and replay outbox events"}

	var eventID int64
	replay := &cobra.Command{
		Use:   "replay",
		Short: "Reset a single event to pending",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if eventID <= 0 {
				return fmt.Errorf("--id is required")
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Replay.ReplayEvent(cmd.Context(), eventID); err != nil {
					return err
				}
				fmt.Printf("event %d replayed\n", eventID)
				return nil
			})
		},
	}
	replay.Flags().Int64Var(&eventID, "id", 0, "outbox event id")

	var limit int
	replayFailed := &cobra.Command{
		Use:   "replay-failed",
		Short: "Replay events that exhausted their retries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Replay.ReplayFailedEvents(cmd.Context(), limit)
				if err != nil {
					return err
				}
				fmt.Printf("replayed %d event(s)\n", n)
				return nil
			})
		},
	}
	replayFailed.Flags().IntVar(&limit, "limit", 100, "maximum events to replay")

	cmd.AddCommand(replay, replayFailed)
	return cmd
}

func settingsCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "settings", Short: "Platform payment settings"}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show payment settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				s, err := a.Settings.Payments(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}

	setDefault := &cobra.Command{
		Use:   "set-default-provider <stripe|yoco>",
		Short: "Choose the provider used when a request names none",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				s, err := a.Settings.SetDefaultProvider(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}

	cmd.AddCommand(get, setDefault)
	return cmd
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "User roles and subscription tiers"}

	var email string
	userService := func(a *app.App) *auth.Service {
		return auth.NewService(a.Store.Users, a.Config.JWT.Secret, a.Config.JWT.TTL, zap.NewNop())
	}

	setRole := &cobra.Command{
		Use:   "set-role <user|admin>",
		Short: "Change a user's role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				u, err := userService(a).SetRole(cmd.Context(), email, args[0])
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}

	setTier := &cobra.Command{
		Use:   "set-tier <free|starter|pro|enterprise>",
		Short: "Change a user's subscription tier",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				u, err := userService(a).SetTier(cmd.Context(), email, args[0])
				if err != nil {
					return err
				}
				return printJSON(u)
			})
		},
	}

	for _, c := range []*cobra.Command{setRole, setTier} {
		c.Flags().StringVar(&email, "email", "", "user email")
		_ = c.MarkFlagRequired("email")
	}
	cmd.AddCommand(setRole, setTier)
	return cmd
}
