package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/simp-lee/ginx"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/recyclebin/internal/config"
	"github.com/simp-lee/recyclebin/internal/domain"
	"github.com/simp-lee/recyclebin/internal/middleware"
	"github.com/simp-lee/recyclebin/internal/module/user"
	"github.com/simp-lee/recyclebin/internal/softdelete"
)

// App holds the core application dependencies and the HTTP server.
type App struct {
	engine *gin.Engine
	db     *gorm.DB
	logger *logger.Logger
	cfg    *config.Config
	users  domain.UserService
}

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// newHTTPServer builds the server; timeout, when positive, bounds reads and writes.
var newHTTPServer = func(addr string, handler http.Handler, timeout time.Duration) httpServer {
	read, write := 30*time.Second, 60*time.Second
	if timeout > 0 {
		read, write = timeout, timeout
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       read,
		WriteTimeout:      write,
		IdleTimeout:       120 * time.Second,
	}
}

var notifyContext = func(parent context.Context, signals ...os.Signal) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, signals...)
}

// New creates and wires a fully configured App from the given Config.
//
// It sets up logging, the database, the user repository with its soft-delete
// scope, the service, handlers, middleware and routes.
func New(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	success := false

	// 1. Setup logger.
	log, err := config.SetupLogger(&cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("setup logger: %w", err)
	}

	if cfg.Server.Mode == gin.DebugMode && cfg.Server.Host == "0.0.0.0" {
		log.Warn("insecure server config: debug mode on 0.0.0.0 may expose debug behavior and permissive CORS")
	}
	defer func() {
		if success {
			return
		}
		if err := log.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}()

	retention, err := cfg.Trash.RetentionDuration()
	if err != nil {
		return nil, err
	}

	// 2. Setup database.
	db, err := config.SetupDatabase(&cfg.Database, log.Logger)
	if err != nil {
		return nil, fmt.Errorf("setup database: %w", err)
	}
	defer func() {
		if success {
			return
		}
		sqlDB, err := db.DB()
		if err != nil {
			return
		}
		if err := sqlDB.Close(); err != nil {
			slog.Error("database close error", slog.Any("error", err))
		}
	}()

	// 3. AutoMigrate (debug mode unless configured otherwise).
	migrated, err := cfg.Database.Migrate(db, cfg.Server.Mode, &domain.User{})
	if err != nil {
		return nil, err
	}
	if migrated {
		log.Info("auto migration completed")
	}

	// 4. Manual dependency injection: repository → service → handler → module.
	repo := user.NewUserRepository(db, softdelete.WithLogger(log.Logger))
	svc := user.NewUserService(repo, retention)
	users := user.NewModule(user.NewUserHandler(svc))

	// 5. Create Gin engine with custom middleware (not gin.Default()).
	if err := validateGinMode(cfg.Server.Mode); err != nil {
		return nil, err
	}
	gin.SetMode(cfg.Server.Mode)
	engine := gin.New()

	// The access and panic logs go to the console only; the application
	// logger owns the log file.
	accessLog := cfg.Log
	accessLog.FilePath = ""

	engine.Use(middleware.Chain(middleware.Config{
		LoggerOptions: config.BuildLoggerOpts(&accessLog),
		CORS:          resolveCORSOptions(cfg.Server.Mode, cfg.Server.CORS),
	}))

	// 6. Register all routes.
	if err := RegisterRoutes(engine, &RouteDeps{
		Modules: []Module{users},
		DB:      db,
		Mode:    cfg.Server.Mode,
	}); err != nil {
		return nil, fmt.Errorf("register routes: %w", err)
	}

	log.Info("trash configured", slog.Duration("retention", retention))

	success = true
	return &App{
		engine: engine,
		db:     db,
		logger: log,
		cfg:    cfg,
		users:  svc,
	}, nil
}

// defaultCORSHeaders are the request headers API clients may send.
var defaultCORSHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With", middleware.DefaultRequestIDHeader}

// resolveCORSOptions overlays configured CORS settings on the defaults. Without
// an allowlist, debug and test mode allow any origin and release mode denies
// cross-origin requests. Credentials are never sent to a wildcard origin.
func resolveCORSOptions(mode string, cfg config.CORSConfig) []ginx.Option[ginx.CORSConfig] {
	origins := cfg.AllowOrigins
	if len(origins) == 0 {
		origins = []string{}
		if mode != gin.ReleaseMode {
			origins = []string{"*"}
		}
	}

	headers := defaultCORSHeaders
	if len(cfg.AllowHeaders) > 0 {
		headers = cfg.AllowHeaders
	}

	opts := []ginx.Option[ginx.CORSConfig]{
		ginx.WithAllowOrigins(origins...),
		ginx.WithAllowHeaders(headers...),
		ginx.WithAllowCredentials(cfg.AllowCredentials && !slices.Contains(origins, "*")),
	}
	if len(cfg.AllowMethods) > 0 {
		opts = append(opts, ginx.WithAllowMethods(cfg.AllowMethods...))
	}
	if cfg.MaxAge != "" {
		if d, err := time.ParseDuration(cfg.MaxAge); err == nil && d > 0 {
			opts = append(opts, ginx.WithMaxAge(d))
		}
	}
	return opts
}

func validateGinMode(mode string) error {
	switch mode {
	case gin.DebugMode, gin.ReleaseMode, gin.TestMode:
		return nil
	default:
		return fmt.Errorf("invalid server.mode %q: must be one of %q, %q, %q", mode, gin.DebugMode, gin.ReleaseMode, gin.TestMode)
	}
}

// Engine exposes the configured router, mainly for tests.
func (a *App) Engine() *gin.Engine {
	return a.engine
}

// log returns the application logger, or the slog default before setup.
func (a *App) log() *slog.Logger {
	if a.logger != nil {
		return a.logger.Logger
	}
	return slog.Default()
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// It performs graceful shutdown with a 5-second timeout and closes the database
// connection.
func (a *App) Run() error {
	if a == nil {
		return errors.New("app is nil")
	}
	if a.cfg == nil {
		return errors.New("app config is nil")
	}
	if a.engine == nil {
		return errors.New("app engine is nil")
	}

	log := a.log()
	addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
	srv := newHTTPServer(addr, a.engine, serverTimeout(a.cfg.Server.Timeout))

	// Listen for SIGINT / SIGTERM.
	ctx, stop := notifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		runErr = fmt.Errorf("server error: %w", err)
	}

	if runErr == nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown error", slog.Any("error", err))
		}
	}

	log.Info("server stopped")
	a.close()

	return runErr
}

// EmptyTrash purges users trashed longer ago than the configured retention,
// then releases the database and logger. It is the one-shot alternative to Run.
func (a *App) EmptyTrash(ctx context.Context) (int64, error) {
	if a == nil || a.users == nil {
		return 0, errors.New("app is not initialized")
	}
	defer a.close()

	return a.users.EmptyTrash(ctx, nil)
}

// close releases the database and logger.
func (a *App) close() {
	log := a.log()
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				log.Error("database close error", slog.Any("error", err))
			} else {
				log.Info("database connection closed")
			}
		}
	}
	if a.logger != nil {
		if err := a.logger.Close(); err != nil {
			slog.Error("logger close error", slog.Any("error", err))
		}
	}
}

// serverTimeout parses server.timeout; zero means the built-in defaults.
func serverTimeout(raw string) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0
	}
	return d
}
