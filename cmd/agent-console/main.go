package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/propdesk/agent-console/internal/api"
	"github.com/propdesk/agent-console/internal/app"
	iauth "github.com/propdesk/agent-console/internal/auth"
	"github.com/propdesk/agent-console/internal/console"
	"github.com/propdesk/agent-console/internal/credentials"
	"github.com/propdesk/agent-console/internal/database"
	"github.com/propdesk/agent-console/internal/journal"
	"github.com/propdesk/agent-console/internal/realtime"
	"github.com/propdesk/agent-console/internal/upstream"
	"github.com/propdesk/agent-console/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("agent-console", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	if strings.TrimSpace(cfg.Auth.JWT.Secret) == "" {
		return errors.New("auth.jwt.secret must be configured")
	}
	if strings.TrimSpace(cfg.Upstream.BaseURL) == "" {
		return errors.New("upstream.base_url must be configured")
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	jwtService, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return fmt.Errorf("initialise jwt service: %w", err)
	}

	credStore, err := credentials.NewStore(db)
	if err != nil {
		return fmt.Errorf("initialise credential store: %w", err)
	}

	cred, err := credStore.Load(ctx)
	if errors.Is(err, credentials.ErrNotConfigured) {
		log.Warn("seat credentials not configured; call POST /api/session/configure and restart")
	} else if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}

	journalSvc, err := journal.NewService(db)
	if err != nil {
		return fmt.Errorf("initialise journal: %w", err)
	}

	client := upstream.NewClient(
		upstream.ClientConfig{
			BaseURL:    cfg.Upstream.BaseURL,
			HTTPClient: &http.Client{Timeout: cfg.Upstream.Timeout},
		},
		upstream.Credentials{Token: cred.Token, ExecutiveID: cred.ExecutiveID},
	)

	hub := realtime.NewHub()

	con, err := console.New(cfg.ConsoleConfigFor(), console.Deps{
		DB:      db,
		Backend: client,
		Hub:     hub,
		Journal: journalSvc,
		Player:  console.HubPlayer(hub),
		Logger:  logger.WithModule("console"),
	})
	if err != nil {
		return fmt.Errorf("initialise console: %w", err)
	}

	hub.SetAttachObserver(con.OnUIAttach)

	configured := cred.ExecutiveID != ""
	if configured {
		if err := con.Start(ctx); err != nil {
			return fmt.Errorf("start console: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := con.Stop(stopCtx); err != nil {
				log.Warn("console shutdown incomplete", zap.Error(err))
			}
		}()

		socket := upstream.NewSocket(
			cfg.Upstream.SocketConfigFor(cred.Token),
			upstream.Handlers{
				OnNew:      con.HandleLiveEvent,
				OnAssigned: con.HandleAssignment,
				OnDown:     con.HandleSocketDown,
			},
			logger.WithModule("socket"),
		)
		go socket.Run(ctx)
		defer socket.Close()
	}

	router, err := api.NewRouter(api.Deps{
		Console:     con,
		Hub:         hub,
		Journal:     journalSvc,
		Credentials: credStore,
		JWT:         jwtService,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr), zap.Bool("configured", configured))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	db, err := database.OpenAndMigrate(cfg.Database.DatabaseConfigFor())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	logger.WithModule("database").Info("database connected",
		zap.String("driver", strings.ToLower(strings.TrimSpace(cfg.Database.Driver))))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("database close failed", zap.Error(err))
	}
}
