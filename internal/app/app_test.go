package app

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/five82/tables/internal/poller"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestOpen_WiresDefaultsAndOverrides(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	env, err := Open(Options{
		ConfigPath: filepath.Join(t.TempDir(), "absent.toml"),
		ServerURL:  "http://tables.test:8080",
		LogLevel:   "debug",
		LogWriter:  io.Discard,
	})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer func() { _ = env.Close() }()

	if env.Config.ServerURL != "http://tables.test:8080" {
		t.Fatalf("ServerURL = %q, want override", env.Config.ServerURL)
	}
	if env.Config.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", env.Config.LogLevel)
	}
	if got := env.Client.BaseURL().Host; got != "tables.test:8080" {
		t.Fatalf("client host = %q, want tables.test:8080", got)
	}
	if env.Service == nil || env.Polls == nil || env.Store == nil || env.Status == nil {
		t.Fatalf("Open left components nil: %+v", env)
	}
	if env.Prefs.Theme != "Dracula" {
		t.Fatalf("Prefs.Theme = %q, want Dracula", env.Prefs.Theme)
	}
}

func TestOpen_InvalidConfigFails(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	if _, err := Open(Options{ConfigPath: writeConfig(t, `retry-attempts = 0`), LogWriter: io.Discard}); err == nil {
		t.Fatalf("Open returned nil error, want config error")
	}
}

func TestOpen_UnauthorizedSignalsRedirect(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.GET("/check_auth", func(c *gin.Context) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	cfgPath := writeConfig(t, `redirect-delay = "5ms"`)
	env, err := Open(Options{ConfigPath: cfgPath, ServerURL: srv.URL, LogWriter: io.Discard})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer func() { _ = env.Close() }()

	auth, err := env.Service.CheckAuth(context.Background())
	if err != nil {
		t.Fatalf("CheckAuth returned error: %v", err)
	}
	if auth.Authenticated {
		t.Fatalf("auth = %+v, want unauthenticated", auth)
	}

	select {
	case <-env.AuthExpired:
	case <-time.After(2 * time.Second):
		t.Fatalf("no redirect signal after 401")
	}
}

func TestOpen_PhaseChangesReachChannel(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/start", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Processing started"})
	})
	router.GET("/check_files", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"sklad_exists": true, "reestr_exists": true, "exit_exists": true})
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	cfgPath := writeConfig(t, `poll-interval = "5ms"`)
	env, err := Open(Options{ConfigPath: cfgPath, ServerURL: srv.URL, LogWriter: io.Discard})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	defer func() { _ = env.Close() }()

	session, err := env.Service.Start(context.Background())
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	<-session.Done()

	select {
	case p := <-env.PhaseChanges:
		if p != poller.PhaseCompleted {
			t.Fatalf("latest phase = %v, want completed", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no phase change after the session finished")
	}
}

func TestOfferLatest_ReplacesUnreadValue(t *testing.T) {
	ch := make(chan int, 1)
	offerLatest(ch, 1)
	offerLatest(ch, 2)
	if got := <-ch; got != 2 {
		t.Fatalf("received %d, want 2", got)
	}
}

func TestClose_PersistsCookies(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/login", func(c *gin.Context) {
		c.SetCookie("session", "abc123", 3600, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Login successful"})
	})
	router.GET("/check_auth", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": "anna"})
	})
	srv := httptest.NewServer(router)
	defer srv.Close()

	cookies := filepath.Join(home, "cookies.json")
	cfgPath := writeConfig(t, "cookie-file = \""+cookies+"\"\nprefs-file = \""+filepath.Join(home, "prefs.toml")+"\"\n")
	env, err := Open(Options{ConfigPath: cfgPath, ServerURL: srv.URL, LogWriter: io.Discard})
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if _, err := env.Service.Login(context.Background(), "anna", "secret"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if err := env.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	data, err := os.ReadFile(cookies)
	if err != nil {
		t.Fatalf("ReadFile(cookies): %v", err)
	}
	if !strings.Contains(string(data), "abc123") {
		t.Fatalf("cookie file = %s, want session value", data)
	}

	reopened, err := Open(Options{ConfigPath: cfgPath, ServerURL: srv.URL, LogWriter: io.Discard})
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if reopened.Prefs.Username != "anna" {
		t.Fatalf("Prefs.Username = %q, want remembered user", reopened.Prefs.Username)
	}
}
