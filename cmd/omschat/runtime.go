package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"OMSChat/internal/api"
	"OMSChat/internal/app"
	"OMSChat/internal/chat"
	"OMSChat/internal/config"
	"OMSChat/internal/format"
	"OMSChat/internal/login"
	"OMSChat/internal/session"
	"OMSChat/internal/store"
	"OMSChat/internal/telemetry"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// runtime holds the wired components shared by every command
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *api.Client
	session  *session.Manager
	notifier *app.Notifier
	chat     *chat.Controller
	login    *login.Flow
	renderer *format.Renderer

	closers []func()
}

// loadConfig reads the environment and applies any flags the user set
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Debug = debug
	}
	if flags.Changed("api-url") {
		cfg.APIBaseURL = apiURL
	}
	if flags.Changed("db") {
		cfg.DBPath = dbPath
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = logDir
	}
	if flags.Changed("download-dir") {
		cfg.DownloadDir = downloadDir
	}
	if flags.Changed("default-tenant") {
		cfg.DefaultTenant = tenant
	}
	if flags.Changed("timeout") {
		cfg.RequestTimeout = timeout
	}
	if flags.Changed("ephemeral") {
		cfg.Ephemeral = ephemeral
	}
	if flags.Changed("require-token") {
		cfg.RequireToken = requireToken
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newRuntime(ctx context.Context, cmd *cobra.Command, out io.Writer) (*runtime, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	rt := &runtime{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	rt.logger = logger
	rt.closers = append(rt.closers, func() { _ = closeLog() })

	tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir, version)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	rt.closers = append(rt.closers, cleanup)

	if cfg.Debug {
		logger.Info("debug mode enabled")
	}

	var kv store.KV
	if cfg.Ephemeral {
		kv = store.NewMemory()
	} else {
		db, err := store.Open(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		rt.closers = append(rt.closers, func() {
			if err := db.Close(); err != nil {
				logger.Error("failed to close session store", "error", err)
			}
		})
		kv = db
	}

	rt.client, err = api.New(cfg.APIBaseURL, logger,
		api.WithRequireToken(cfg.RequireToken),
		api.WithTelemetry(tracer, meter),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	rt.session, err = session.NewManager(kv, rt.client, cfg.DefaultTenant, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	rt.renderer = format.NewRenderer(cfg.DownloadDir)
	rt.notifier = app.NewNotifier(out, rt.renderer.Styles.Error)
	rt.chat = chat.New(rt.client, rt.session, rt.notifier, logger, chat.Options{
		Timeout:      cfg.RequestTimeout,
		RequireToken: cfg.RequireToken,
	})
	rt.login = login.NewFlow(rt.client, rt.session, rt.notifier, logger)

	ok = true
	return rt, nil
}

// Close releases resources in reverse order of acquisition
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

// terminalPassword reads a password without echo, or returns nil when f is
// not a terminal so callers fall back to their own line reader.
func terminalPassword(f *os.File) app.PasswordFunc {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return nil
	}
	return func() (string, error) {
		b, err := term.ReadPassword(fd)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}
}
