package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/simp-lee/ginx"
	"github.com/simp-lee/logger"
	"gorm.io/gorm"

	"github.com/simp-lee/recyclebin/internal/config"
)

type fakeHTTPServer struct {
	listenErr      error
	listenStarted  chan struct{}
	shutdownCalled bool
	stopCh         chan struct{}
	mu             sync.Mutex
}

func (f *fakeHTTPServer) ListenAndServe() error {
	if f.listenStarted != nil {
		close(f.listenStarted)
	}
	if f.listenErr != nil {
		return f.listenErr
	}
	if f.stopCh != nil {
		<-f.stopCh
	}
	return http.ErrServerClosed
}

func (f *fakeHTTPServer) Shutdown(context.Context) error {
	f.mu.Lock()
	f.shutdownCalled = true
	f.mu.Unlock()
	if f.stopCh != nil {
		close(f.stopCh)
	}
	return nil
}

func (f *fakeHTTPServer) wasShutdownCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shutdownCalled
}

func boolPtr(b bool) *bool { return &b }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Mode: gin.TestMode,
		},
		Database: config.DatabaseConfig{
			Driver:      "sqlite",
			AutoMigrate: boolPtr(true),
			SQLite:      config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "app.db")},
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "text",
			Color:  boolPtr(false),
		},
		Trash: config.TrashConfig{Retention: "720h"},
	}
}

func cleanupTestApp(t *testing.T, a *App) {
	t.Helper()
	if a == nil {
		return
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// applyCORSOptions folds opts into a zero CORSConfig.
func applyCORSOptions(opts []ginx.Option[ginx.CORSConfig]) ginx.CORSConfig {
	var cfg ginx.CORSConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func TestResolveCORSOptions(t *testing.T) {
	tests := []struct {
		name        string
		mode        string
		cfg         config.CORSConfig
		wantOrigins []string
		wantHeaders []string
		wantMethods []string
		wantMaxAge  time.Duration
		wantCreds   bool
	}{
		{
			name:        "debug without allowlist keeps wildcard",
			mode:        gin.DebugMode,
			wantOrigins: []string{"*"},
			wantHeaders: defaultCORSHeaders,
		},
		{
			name:        "release without allowlist denies cross-origin",
			mode:        gin.ReleaseMode,
			wantOrigins: []string{},
			wantHeaders: defaultCORSHeaders,
		},
		{
			name: "configured allowlist wins in release",
			mode: gin.ReleaseMode,
			cfg: config.CORSConfig{
				AllowOrigins:     []string{"https://admin.example.com"},
				AllowMethods:     []string{"GET"},
				AllowHeaders:     []string{"Content-Type"},
				AllowCredentials: true,
				MaxAge:           "12h",
			},
			wantOrigins: []string{"https://admin.example.com"},
			wantHeaders: []string{"Content-Type"},
			wantMethods: []string{"GET"},
			wantMaxAge:  12 * time.Hour,
			wantCreds:   true,
		},
		{
			name:        "credentials dropped for the debug wildcard",
			mode:        gin.DebugMode,
			cfg:         config.CORSConfig{AllowCredentials: true},
			wantOrigins: []string{"*"},
			wantHeaders: defaultCORSHeaders,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyCORSOptions(resolveCORSOptions(tt.mode, tt.cfg))
			if !slices.Equal(got.AllowOrigins, tt.wantOrigins) {
				t.Errorf("AllowOrigins = %v, want %v", got.AllowOrigins, tt.wantOrigins)
			}
			if !slices.Equal(got.AllowHeaders, tt.wantHeaders) {
				t.Errorf("AllowHeaders = %v, want %v", got.AllowHeaders, tt.wantHeaders)
			}
			if !slices.Equal(got.AllowMethods, tt.wantMethods) {
				t.Errorf("AllowMethods = %v, want %v", got.AllowMethods, tt.wantMethods)
			}
			if got.MaxAge != tt.wantMaxAge {
				t.Errorf("MaxAge = %v, want %v", got.MaxAge, tt.wantMaxAge)
			}
			if got.AllowCredentials != tt.wantCreds {
				t.Errorf("AllowCredentials = %v, want %v", got.AllowCredentials, tt.wantCreds)
			}
		})
	}
}

func TestNew_CORSPreflightAllowsRequestIDHeader(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { cleanupTestApp(t, a) })

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/users", nil)
	req.Header.Set("Origin", "https://admin.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Content-Type, X-Request-ID")
	w := httptest.NewRecorder()
	a.Engine().ServeHTTP(w, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want %d", w.Code, http.StatusNoContent)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
}

func TestValidateGinMode(t *testing.T) {
	tests := []struct {
		name    string
		mode    string
		wantErr bool
	}{
		{name: "debug mode", mode: gin.DebugMode, wantErr: false},
		{name: "release mode", mode: gin.ReleaseMode, wantErr: false},
		{name: "test mode", mode: gin.TestMode, wantErr: false},
		{name: "invalid mode", mode: "staging", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateGinMode(tt.mode)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateGinMode() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestServerTimeout(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Duration
	}{
		{"", 0},
		{"bogus", 0},
		{"-5s", 0},
		{"15s", 15 * time.Second},
	}
	for _, tt := range tests {
		if got := serverTimeout(tt.raw); got != tt.want {
			t.Errorf("serverTimeout(%q) = %v, want %v", tt.raw, got, tt.want)
		}
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Fatal("New(nil) error = nil, want error")
	}
}

func TestNew_ReturnsError_WhenDatabaseSetupFails(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "unsupported"

	app, err := New(cfg)
	if err == nil {
		t.Fatalf("New() error = nil, want error")
	}
	if app != nil {
		t.Fatalf("New() app = %#v, want nil", app)
	}
	if !strings.Contains(err.Error(), "setup database") {
		t.Fatalf("New() error = %q, want contains %q", err.Error(), "setup database")
	}
}

func TestNew_ReturnsError_WhenRetentionInvalid(t *testing.T) {
	cfg := testConfig(t)
	cfg.Trash.Retention = "forever"

	app, err := New(cfg)
	if err == nil {
		cleanupTestApp(t, app)
		t.Fatal("New() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "trash.retention") {
		t.Fatalf("New() error = %q, want contains %q", err.Error(), "trash.retention")
	}
}

func TestNew_ReturnsError_WhenModeInvalid(t *testing.T) {
	cfg := testConfig(t)
	cfg.Server.Mode = "staging"

	app, err := New(cfg)
	if err == nil {
		cleanupTestApp(t, app)
		t.Fatal("New() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "server.mode") {
		t.Fatalf("New() error = %q, want contains %q", err.Error(), "server.mode")
	}
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func call(t *testing.T, h http.Handler, method, path string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode response %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func TestNew_TrashLifecycleOverHTTP(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { cleanupTestApp(t, a) })
	h := a.Engine()

	code, env := call(t, h, http.MethodPost, "/api/v1/users", map[string]any{"name": "Alice", "email": "alice@example.com"})
	if code != http.StatusCreated {
		t.Fatalf("create status = %d, body %+v", code, env)
	}
	var created struct {
		ID        uint      `json:"id"`
		DeletedAt time.Time `json:"deleted_at"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode created user: %v", err)
	}
	if !created.DeletedAt.Equal(time.Unix(0, 0)) {
		t.Errorf("created deleted_at = %v, want epoch", created.DeletedAt)
	}
	userPath := fmt.Sprintf("/api/v1/users/%d", created.ID)
	trashPath := fmt.Sprintf("/api/v1/trash/users/%d", created.ID)

	if code, env = call(t, h, http.MethodDelete, userPath, nil); code != http.StatusOK {
		t.Fatalf("delete status = %d, body %+v", code, env)
	}
	if code, _ = call(t, h, http.MethodGet, userPath, nil); code != http.StatusNotFound {
		t.Errorf("get deleted user status = %d, want 404", code)
	}
	if code, _ = call(t, h, http.MethodGet, trashPath, nil); code != http.StatusOK {
		t.Errorf("get trashed user status = %d, want 200", code)
	}

	// The email stays reserved while the user sits in the trash.
	code, _ = call(t, h, http.MethodPost, "/api/v1/users", map[string]any{"name": "Alice Again", "email": "alice@example.com"})
	if code != http.StatusConflict {
		t.Errorf("recreate status = %d, want 409", code)
	}

	code, env = call(t, h, http.MethodGet, "/api/v1/stats/users", nil)
	if code != http.StatusOK {
		t.Fatalf("stats status = %d", code)
	}
	var stats struct {
		Active, Deleted, Total int64
	}
	if err := json.Unmarshal(env.Data, &stats); err != nil {
		t.Fatalf("decode stats: %v", err)
	}
	if stats.Active != 0 || stats.Deleted != 1 || stats.Total != 1 {
		t.Errorf("stats = %+v, want 0/1/1", stats)
	}

	if code, env = call(t, h, http.MethodPost, trashPath+"/restore", nil); code != http.StatusOK {
		t.Fatalf("restore status = %d, body %+v", code, env)
	}
	if code, _ = call(t, h, http.MethodGet, userPath, nil); code != http.StatusOK {
		t.Errorf("get restored user status = %d, want 200", code)
	}

	if code, _ = call(t, h, http.MethodDelete, trashPath, nil); code != http.StatusNotFound {
		t.Errorf("purge active user status = %d, want 404", code)
	}
	if code, _ = call(t, h, http.MethodDelete, userPath, nil); code != http.StatusOK {
		t.Fatalf("second delete status = %d", code)
	}
	if code, env = call(t, h, http.MethodDelete, trashPath, nil); code != http.StatusOK {
		t.Fatalf("purge status = %d, body %+v", code, env)
	}
	if code, _ = call(t, h, http.MethodGet, trashPath, nil); code != http.StatusNotFound {
		t.Errorf("get purged user status = %d, want 404", code)
	}
}

func TestNew_ProtectedUserCannotBeDeleted(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { cleanupTestApp(t, a) })
	h := a.Engine()

	code, env := call(t, h, http.MethodPost, "/api/v1/users", map[string]any{"name": "Root", "email": "root@example.com", "protected": true})
	if code != http.StatusCreated {
		t.Fatalf("create status = %d, body %+v", code, env)
	}
	var created struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode created user: %v", err)
	}

	code, env = call(t, h, http.MethodDelete, fmt.Sprintf("/api/v1/users/%d", created.ID), nil)
	if code != http.StatusConflict {
		t.Fatalf("delete protected status = %d, want 409 (body %+v)", code, env)
	}
	if code, _ = call(t, h, http.MethodGet, fmt.Sprintf("/api/v1/users/%d", created.ID), nil); code != http.StatusOK {
		t.Errorf("protected user should still be active, got status %d", code)
	}
}

func TestRun_ReturnsError_WhenListenFails(t *testing.T) {
	originalNewHTTPServer := newHTTPServer
	originalNotifyContext := notifyContext
	defer func() {
		newHTTPServer = originalNewHTTPServer
		notifyContext = originalNotifyContext
	}()

	listenErr := errors.New("listen failed")
	server := &fakeHTTPServer{listenErr: listenErr}
	newHTTPServer = func(string, http.Handler, time.Duration) httpServer {
		return server
	}
	notifyContext = func(context.Context, ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(context.Background())
	}

	a := &App{
		engine: gin.New(),
		logger: logger.Default(),
		cfg:    &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080}},
	}

	err := a.Run()
	if err == nil {
		t.Fatalf("Run() error = nil, want error")
	}
	if !strings.Contains(err.Error(), "server error") {
		t.Fatalf("Run() error = %q, want contains %q", err.Error(), "server error")
	}
	if !errors.Is(err, listenErr) {
		t.Fatalf("Run() error = %v, want wraps %v", err, listenErr)
	}
}

func TestRun_PassesServerTimeout(t *testing.T) {
	originalNewHTTPServer := newHTTPServer
	originalNotifyContext := notifyContext
	defer func() {
		newHTTPServer = originalNewHTTPServer
		notifyContext = originalNotifyContext
	}()

	var gotTimeout time.Duration
	newHTTPServer = func(_ string, _ http.Handler, timeout time.Duration) httpServer {
		gotTimeout = timeout
		return &fakeHTTPServer{listenErr: errors.New("stop")}
	}
	notifyContext = func(context.Context, ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(context.Background())
	}

	a := &App{
		engine: gin.New(),
		cfg:    &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080, Timeout: "7s"}},
	}
	_ = a.Run()

	if gotTimeout != 7*time.Second {
		t.Fatalf("server timeout = %v, want 7s", gotTimeout)
	}
}

func TestRun_ShutdownSignal_ClosesDatabase(t *testing.T) {
	originalNewHTTPServer := newHTTPServer
	originalNotifyContext := notifyContext
	defer func() {
		newHTTPServer = originalNewHTTPServer
		notifyContext = originalNotifyContext
	}()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}

	server := &fakeHTTPServer{listenStarted: make(chan struct{}), stopCh: make(chan struct{})}
	newHTTPServer = func(string, http.Handler, time.Duration) httpServer {
		return server
	}

	ctx, cancel := context.WithCancel(context.Background())
	notifyContext = func(context.Context, ...os.Signal) (context.Context, context.CancelFunc) {
		return ctx, cancel
	}

	a := &App{
		engine: gin.New(),
		db:     db,
		logger: logger.Default(),
		cfg:    &config.Config{Server: config.ServerConfig{Host: "127.0.0.1", Port: 8080}},
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.Run()
	}()

	select {
	case <-server.listenStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not start listening in time")
	}

	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run() error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run() did not return in time after shutdown signal")
	}

	if !server.wasShutdownCalled() {
		t.Fatal("expected server Shutdown() to be called")
	}

	if pingErr := sqlDB.Ping(); pingErr == nil {
		t.Fatal("expected database connection to be closed, but Ping() succeeded")
	}
}

func TestApp_EmptyTrash_UsesRetention(t *testing.T) {
	a, err := New(testConfig(t))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h := a.Engine()

	code, env := call(t, h, http.MethodPost, "/api/v1/users", map[string]any{"name": "Bob", "email": "bob@example.com"})
	if code != http.StatusCreated {
		t.Fatalf("create status = %d, body %+v", code, env)
	}
	var created struct {
		ID uint `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &created); err != nil {
		t.Fatalf("decode created user: %v", err)
	}
	if code, _ = call(t, h, http.MethodDelete, fmt.Sprintf("/api/v1/users/%d", created.ID), nil); code != http.StatusOK {
		t.Fatalf("delete status = %d", code)
	}

	// Deleted just now, so well inside the 30 day retention.
	n, err := a.EmptyTrash(context.Background())
	if err != nil {
		t.Fatalf("EmptyTrash() error = %v", err)
	}
	if n != 0 {
		t.Errorf("EmptyTrash() purged %d, want 0", n)
	}

	sqlDB, err := a.db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	if err := sqlDB.Ping(); err == nil {
		t.Error("expected EmptyTrash to close the database")
	}
}

func TestApp_EmptyTrash_Uninitialized(t *testing.T) {
	var a *App
	if _, err := a.EmptyTrash(context.Background()); err == nil {
		t.Fatal("EmptyTrash() on nil app error = nil, want error")
	}
}
