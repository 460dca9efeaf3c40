package main

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"github.com/spec-kit/adoption-client/internal/api"
	"github.com/spec-kit/adoption-client/internal/config"
	"github.com/spec-kit/adoption-client/internal/domain"
	"github.com/spec-kit/adoption-client/internal/events"
	"github.com/spec-kit/adoption-client/internal/gateway"
	"github.com/spec-kit/adoption-client/internal/guard"
	"github.com/spec-kit/adoption-client/internal/observability"
	"github.com/spec-kit/adoption-client/internal/refresh"
	"github.com/spec-kit/adoption-client/internal/session"
	"github.com/spec-kit/adoption-client/internal/storage"
)

// kit is one fully wired client instance. Each CLI invocation is its own
// "tab": the tab marker lives in process memory while credentials persist in
// the state directory.
type kit struct {
	cfg      *config.Config
	logger   *zap.Logger
	creds    *storage.CredentialStore
	tab      *storage.TabStore
	sessions *session.Manager
	guard    *guard.Guard
	gateway  *gateway.Gateway
}

// consoleNavigator prints redirect decisions instead of navigating.
type consoleNavigator struct {
	logger *zap.Logger
}

func (n *consoleNavigator) Redirect(target string) {
	n.logger.Info("redirect", zap.String("target", target))
	fmt.Fprintf(os.Stderr, "-> would navigate to %s\n", target)
}

func buildKit() (*kit, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, err
	}

	var kv storage.KV
	if cfg.Session.UseRedis {
		kv = storage.NewRedisStore(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Session.RedisNamespace, logger)
	} else {
		fileKV, err := storage.NewFileStore(cfg.Session.CredentialsPath())
		if err != nil {
			return nil, fmt.Errorf("opening credential store: %w", err)
		}
		kv = fileKV
	}

	creds := storage.NewCredentialStore(kv, logger)
	tab := storage.NewTabStore(storage.NewMemoryStore())
	bus := events.NewInMemoryDispatcher()

	httpClient := &http.Client{Timeout: cfg.Client.RequestTimeout()}
	authAPI := api.NewAuthClient(cfg.Client.BaseURL, httpClient, logger)

	sessions := session.NewManager(session.ManagerOptions{
		Credentials:     creds,
		Tab:             tab,
		Bus:             bus,
		API:             authAPI,
		Logger:          logger,
		RefreshMargin:   cfg.Session.RefreshMargin(),
		MinRefreshDelay: cfg.Session.MinRefreshDelay(),
	})

	nav := &consoleNavigator{logger: logger}
	metrics := observability.NewMetrics()
	coord := refresh.NewCoordinator(refresh.Options{
		Sessions:       sessions,
		Navigator:      nav,
		Logger:         logger,
		Metrics:        metrics,
		LoginPath:      guard.LoginPage,
		RedirectWindow: cfg.Client.RedirectWindow(),
	})
	notifier := gateway.NewCoalescingNotifier(func(message string) {
		fmt.Fprintf(os.Stderr, "! %s\n", message)
	}, cfg.Client.NoticeWindow(), nil)

	gw := gateway.New(gateway.Options{
		BaseURL:   cfg.Client.BaseURL,
		HTTP:      httpClient,
		Sessions:  sessions,
		Resolver:  session.NewResolver(tab, creds),
		Coord:     coord,
		Notifier:  notifier,
		Navigator: nav,
		Metrics:   metrics,
		Logger:    logger,
	})

	return &kit{
		cfg:      cfg,
		logger:   logger,
		creds:    creds,
		tab:      tab,
		sessions: sessions,
		guard:    guard.New(sessions, creds, logger),
		gateway:  gw,
	}, nil
}

func (k *kit) close() {
	k.sessions.Close()
	_ = k.logger.Sync()
}

func parseRoleFlag(value string) (domain.Role, error) {
	if value == "" {
		return "", nil
	}
	role, ok := domain.ParseRole(value)
	if !ok {
		return "", fmt.Errorf("unknown role %q (want user or admin)", value)
	}
	return role, nil
}
