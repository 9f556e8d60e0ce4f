package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/onwgo/server/internal/app"
	"github.com/onwgo/server/internal/app/terminal"
	webapp "github.com/onwgo/server/internal/app/web"
	"github.com/onwgo/server/internal/config"
	"github.com/onwgo/server/internal/core/loop"
	"github.com/onwgo/server/internal/data"
	"github.com/onwgo/server/internal/registry"
	"github.com/onwgo/server/internal/transport/sshd"
	webtransport "github.com/onwgo/server/internal/transport/web"
)

type options struct {
	configPath  string
	noSSH       bool
	noWeb       bool
	sshEndpoint string
	webEndpoint string
	sshKeyDir   string
	userDB      string
}

func main() {
	opts := &options{}
	root := &cobra.Command{
		Use:           "onwgo",
		Short:         "One Night Werewolf game server, playable over SSH or the browser",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}
	root.Flags().StringVarP(&opts.configPath, "config", "c", "config/server.toml", "path to the server config file")
	root.Flags().BoolVar(&opts.noSSH, "no-ssh", false, "disable the SSH transport")
	root.Flags().BoolVar(&opts.noWeb, "no-web", false, "disable the web transport")
	root.Flags().StringVar(&opts.sshEndpoint, "endpoint", "", "SSH listen endpoint (overrides config)")
	root.Flags().StringVar(&opts.webEndpoint, "web-endpoint", "", "web listen endpoint (overrides config)")
	root.Flags().StringVar(&opts.sshKeyDir, "ssh-key-dir", "", "SSH host key directory (overrides config)")
	root.Flags().StringVar(&opts.userDB, "user-db", "", "user key database path (overrides config)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.configPath, true)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.noSSH {
		cfg.SSH.Enabled = false
	}
	if opts.noWeb {
		cfg.Web.Enabled = false
	}
	if opts.sshEndpoint != "" {
		cfg.SSH.Endpoint = opts.sshEndpoint
	}
	if opts.webEndpoint != "" {
		cfg.Web.Endpoint = opts.webEndpoint
	}
	if opts.sshKeyDir != "" {
		cfg.SSH.KeyDir = opts.sshKeyDir
	}
	if opts.userDB != "" {
		cfg.SSH.UserDB = opts.userDB
	}
	if !cfg.SSH.Enabled && !cfg.Web.Enabled {
		return errors.New("both transports are disabled; nothing to serve")
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	roles, err := data.LoadRoleTable(filepath.Join(cfg.Server.DataDir, "yaml", "role_list.yaml"))
	if err != nil {
		return fmt.Errorf("load role table: %w", err)
	}
	log.Info("role table loaded", zap.Int("cards", roles.Count()))

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	users := registry.NewUserRegistry()
	sessions := registry.NewSessionRegistry(rng)
	lp := loop.New(cfg.Server.QueueSize, log)
	deps := &app.Deps{
		Users:    users,
		Sessions: sessions,
		Bus:      registry.NewBus(users, sessions, lp.Post, log),
		Roles:    roles,
		Log:      log,
		Rand:     rng,
		Post:     lp.Post,
		Schedule: lp.Schedule,
	}
	deps.NewTerminalApp = terminal.NewFactory(deps)
	deps.NewWebApp = webapp.NewFactory(deps)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := lp.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	if cfg.SSH.Enabled {
		dirs := sshd.KeyDirs(cfg.SSH.KeyDir)
		hostKey, err := sshd.LoadHostKey(dirs)
		if err != nil {
			return fmt.Errorf("ssh host key: %w", err)
		}
		userKeys, err := sshd.FindUserKeys(cfg.SSH.UserDB, dirs)
		if err != nil {
			return fmt.Errorf("ssh user keys: %w", err)
		}
		log.Info("user key database loaded", zap.Int("users", len(userKeys)))
		sshServer := sshd.NewServer(deps, log, hostKey, userKeys)
		g.Go(func() error { return sshServer.Serve(ctx, cfg.SSH.Endpoint) })
	}

	if cfg.Web.Enabled {
		webServer := webtransport.NewServer(deps, log)
		g.Go(func() error { return webServer.Serve(ctx, cfg.Web.Endpoint) })
	}

	log.Info("server running", zap.String("name", cfg.Server.Name))
	err = g.Wait()
	log.Info("server stopped")
	return err
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
