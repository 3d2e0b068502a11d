package actions

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/five82/tables/internal/poller"
	"github.com/five82/tables/internal/state"
	"github.com/five82/tables/internal/statuslog"
	"github.com/five82/tables/internal/tables"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeServer mimics the conversion service: two input slots, a result slot
// and a log.
type fakeServer struct {
	mu        sync.Mutex
	files     map[string][]byte
	result    []byte
	logs      []string
	clearFail bool
	clears    int
	logouts   int
	hits      int
}

func newFakeServer() *fakeServer {
	return &fakeServer{files: map[string][]byte{}}
}

func (f *fakeServer) routes(r *gin.Engine) {
	r.Use(func(c *gin.Context) {
		f.mu.Lock()
		f.hits++
		f.mu.Unlock()
	})
	r.POST("/login", func(c *gin.Context) {
		var creds tables.Credentials
		if err := c.BindJSON(&creds); err != nil {
			return
		}
		if creds.Password != "pw" {
			c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Invalid credentials"})
			return
		}
		c.SetCookie("session", "ok", 3600, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})
	r.POST("/logout", func(c *gin.Context) {
		f.mu.Lock()
		f.logouts++
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"status": "success"})
	})
	r.GET("/check_auth", func(c *gin.Context) {
		if _, err := c.Cookie("session"); err != nil {
			c.JSON(http.StatusOK, gin.H{"authenticated": false})
			return
		}
		c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": "anna", "login_time": "2025-03-04 10:11:12"})
	})
	r.POST("/upload", func(c *gin.Context) {
		fh, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"status": "error", "message": "No file part"})
			return
		}
		file, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusOK, gin.H{"status": "error", "message": "Error saving file"})
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		kind := c.PostForm("type")
		f.mu.Lock()
		f.files[kind] = data
		f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "File " + kind + ".xlsx uploaded successfully"})
	})
	r.POST("/start", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.files["sklad"]; !ok {
			c.JSON(http.StatusOK, gin.H{"status": "error", "message": "No sklad.xlsx file"})
			return
		}
		if _, ok := f.files["reestr"]; !ok {
			c.JSON(http.StatusOK, gin.H{"status": "error", "message": "No reestr.xlsx file"})
			return
		}
		f.result = append([]byte("PK\x03\x04"), f.files["sklad"]...)
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Processing started"})
	})
	r.GET("/check_files", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		_, sklad := f.files["sklad"]
		_, reestr := f.files["reestr"]
		c.JSON(http.StatusOK, gin.H{"sklad_exists": sklad, "reestr_exists": reestr, "exit_exists": f.result != nil, "working_dir": "/srv/tables"})
	})
	r.GET("/download", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.result == nil {
			c.JSON(http.StatusOK, gin.H{"status": "error", "message": "File not found"})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="exit.xlsx"`)
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", f.result)
	})
	r.POST("/clear", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.clears++
		if f.clearFail {
			c.JSON(http.StatusInternalServerError, gin.H{"status": "error"})
			return
		}
		f.files = map[string][]byte{}
		f.result = nil
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Files cleared"})
	})
	r.GET("/get_logs", func(c *gin.Context) {
		f.mu.Lock()
		defer f.mu.Unlock()
		c.JSON(http.StatusOK, gin.H{"logs": f.logs})
	})
}

func (f *fakeServer) Hits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits
}

type fixture struct {
	server *fakeServer
	svc    *Service
	log    *statuslog.Log
	store  *state.Store
	saves  int
	user   string
}

func (fx *fixture) Save() error {
	fx.saves++
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := newFakeServer()
	r := gin.New()
	fake.routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	log := statuslog.New(quietLogger())
	jar, err := tables.OpenJar("", srv.URL)
	if err != nil {
		t.Fatalf("OpenJar returned error: %v", err)
	}
	client, err := tables.NewClient(tables.Options{
		BaseURL:    srv.URL,
		Timeout:    2 * time.Second,
		RetryDelay: time.Millisecond,
		Jar:        jar,
		Sink:       log,
		Logger:     quietLogger(),
	})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}

	fx := &fixture{server: fake, log: log, store: &state.Store{}}
	polls := poller.NewManager(client, log, fx.store, poller.Options{Interval: time.Millisecond, Logger: quietLogger()})
	t.Cleanup(polls.Stop)
	fx.svc = New(client, log, fx.store, polls, Options{
		Jar:          fx,
		RememberUser: func(u string) { fx.user = u },
		Logger:       quietLogger(),
	})
	return fx
}

func (fx *fixture) texts(severity statuslog.Severity) []string {
	var out []string
	for _, e := range fx.log.Entries() {
		if e.Severity == severity {
			out = append(out, e.Text)
		}
	}
	return out
}

func writeWorkbook(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestService_FullJobFlow(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()

	auth, err := fx.svc.Login(ctx, " anna ", "pw")
	if err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if !auth.Authenticated || auth.User != "anna" {
		t.Fatalf("auth = %#v, want anna", auth)
	}
	if fx.user != "anna" || fx.saves != 1 {
		t.Fatalf("remembered user = %q saves = %d, want anna/1", fx.user, fx.saves)
	}
	if !fx.store.Snapshot().Authenticated() {
		t.Fatal("store not authenticated after login")
	}

	if err := fx.svc.Upload(ctx, "sklad", writeWorkbook(t, dir, "stock.xlsx", "sklad-bytes")); err != nil {
		t.Fatalf("Upload(sklad) returned error: %v", err)
	}
	if snap := fx.store.Snapshot(); !snap.Files.Sklad || snap.Files.Reestr {
		t.Fatalf("indicators after sklad upload = %#v", snap.Files)
	}
	if err := fx.svc.Upload(ctx, "reestr", writeWorkbook(t, dir, "REGISTER.XLSX", "reestr-bytes")); err != nil {
		t.Fatalf("Upload(reestr) returned error: %v", err)
	}

	session, err := fx.svc.Start(ctx)
	if err != nil {
		t.Fatalf("Start returned error: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if phase := session.Wait(waitCtx); phase != poller.PhaseCompleted {
		t.Fatalf("poll phase = %v, want completed", phase)
	}
	if !fx.store.Snapshot().Files.Result {
		t.Fatal("result indicator not set after completion")
	}

	out := t.TempDir()
	path, err := fx.svc.Download(ctx, filepath.Join(out, "nested"))
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if path != filepath.Join(out, "nested", tables.ResultFilename) {
		t.Fatalf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != "PK\x03\x04sklad-bytes" {
		t.Fatalf("downloaded content = %q", data)
	}
	if _, err := os.Stat(path + ".part"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("partial file left behind: %v", err)
	}

	success := fx.texts(statuslog.Success)
	if len(success) == 0 || !strings.HasPrefix(success[0], "File downloaded successfully") {
		t.Fatalf("newest success = %v, want download message first", success)
	}
}

func TestService_UploadValidationBeforeRequest(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name string
		kind string
		path string
	}{
		{"wrong extension", "sklad", writeWorkbook(t, dir, "data.csv", "a,b")},
		{"missing file", "sklad", filepath.Join(dir, "absent.xlsx")},
		{"bad kind", "exit", writeWorkbook(t, dir, "book.xlsx", "x")},
		{"empty path", "reestr", "  "},
		{"directory", "sklad", mkdirXLSX(t, dir)},
	}
	for _, tt := range tests {
		err := fx.svc.Upload(ctx, tt.kind, tt.path)
		if !tables.IsKind(err, tables.KindValidation) {
			t.Errorf("%s: Upload error = %v, want validation", tt.name, err)
		}
	}
	if fx.server.Hits() != 0 {
		t.Fatalf("server hits = %d, want 0", fx.server.Hits())
	}
	if got := len(fx.log.Entries()); got != len(tests) {
		t.Fatalf("status entries = %d, want one per rejected upload", got)
	}
}

func mkdirXLSX(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "folder.xlsx")
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}
	return path
}

func TestService_StartRejectedDoesNotPoll(t *testing.T) {
	fx := newFixture(t)

	session, err := fx.svc.Start(context.Background())
	if !tables.IsKind(err, tables.KindRejected) {
		t.Fatalf("Start error = %v, want rejected", err)
	}
	if session != nil || fx.svc.Polls().Current() != nil {
		t.Fatal("a poll session was started after a rejected start")
	}
	errs := fx.texts(statuslog.Error)
	if len(errs) != 1 || !strings.Contains(errs[0], "No sklad.xlsx file") {
		t.Fatalf("errors = %v", errs)
	}
}

func TestService_DownloadWithoutResult(t *testing.T) {
	fx := newFixture(t)

	if _, err := fx.svc.Download(context.Background(), t.TempDir()); !errors.Is(err, ErrResultMissing) {
		t.Fatalf("Download error = %v, want ErrResultMissing", err)
	}
	if !fx.store.Snapshot().HasFiles {
		t.Fatal("indicators not refreshed on missing result")
	}
	if errs := fx.texts(statuslog.Error); len(errs) != 1 || errs[0] != "Result file not found" {
		t.Fatalf("errors = %v", errs)
	}
}

type emptyDownloadAPI struct {
	tables.API
}

func (emptyDownloadAPI) CheckFiles(context.Context) (tables.FileState, error) {
	return tables.FileState{Sklad: true, Reestr: true, Result: true}, nil
}

func (emptyDownloadAPI) Download(context.Context) (*tables.Payload, error) {
	return tables.NewPayload(io.NopCloser(strings.NewReader("")), "application/octet-stream", tables.ResultFilename, nil), nil
}

func TestService_DownloadEmptyPayload(t *testing.T) {
	log := statuslog.New(quietLogger())
	svc := New(emptyDownloadAPI{}, log, nil, nil, Options{Logger: quietLogger()})
	dir := t.TempDir()

	_, err := svc.Download(context.Background(), dir)
	if !tables.IsKind(err, tables.KindEmptyPayload) {
		t.Fatalf("Download error = %v, want empty payload", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("download dir has %d entries, want none", len(entries))
	}
}

type textDownloadAPI struct {
	emptyDownloadAPI
}

func (textDownloadAPI) Download(context.Context) (*tables.Payload, error) {
	return tables.NewPayload(io.NopCloser(strings.NewReader("just some text\n")), "application/octet-stream", tables.ResultFilename, nil), nil
}

func TestService_DownloadWarnsOnNonWorkbook(t *testing.T) {
	log := statuslog.New(quietLogger())
	svc := New(textDownloadAPI{}, log, nil, nil, Options{Logger: quietLogger()})

	path, err := svc.Download(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("Download returned error: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	var warned bool
	for _, e := range log.Entries() {
		if e.Severity == statuslog.Warning && strings.Contains(e.Text, "does not look like an Excel workbook") {
			warned = true
		}
	}
	if !warned {
		t.Fatalf("no content warning in %v", log.Entries())
	}
}

func TestService_LogoutProceedsWhenClearFails(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if _, err := fx.svc.Login(ctx, "anna", "pw"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	fx.server.mu.Lock()
	fx.server.clearFail = true
	fx.server.mu.Unlock()

	if err := fx.svc.Logout(ctx); err != nil {
		t.Fatalf("Logout returned error: %v", err)
	}
	fx.server.mu.Lock()
	clears, logouts := fx.server.clears, fx.server.logouts
	fx.server.mu.Unlock()
	if clears == 0 || logouts != 1 {
		t.Fatalf("clears = %d logouts = %d, want >=1 and 1", clears, logouts)
	}
	if fx.store.Snapshot().Authenticated() {
		t.Fatal("store still authenticated after logout")
	}
	if success := fx.texts(statuslog.Success); success[0] != "Logged out successfully" {
		t.Fatalf("newest success = %q", success[0])
	}
}

func TestService_LoginRejected(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Login(context.Background(), "anna", "wrong")
	if !tables.IsKind(err, tables.KindRejected) || !strings.Contains(err.Error(), "Invalid credentials") {
		t.Fatalf("Login error = %v, want rejected with server message", err)
	}
	if fx.user != "" || fx.store.Snapshot().Authenticated() {
		t.Fatal("rejected login changed local state")
	}

	if _, err := fx.svc.Login(context.Background(), "", "pw"); !tables.IsKind(err, tables.KindValidation) {
		t.Fatalf("Login(empty user) error = %v, want validation", err)
	}
}

func TestService_LogsClassifiesLines(t *testing.T) {
	fx := newFixture(t)
	fx.server.logs = []string{
		"2025-03-04 10:00:00 - INFO - started\n",
		"   ",
		"2025-03-04 10:00:01 - WARNING - empty rows",
		"2025-03-04 10:00:02 - ERROR - transform failed",
	}

	lines, err := fx.svc.Logs(context.Background())
	if err != nil {
		t.Fatalf("Logs returned error: %v", err)
	}
	if len(lines) != 3 {
		t.Fatalf("lines = %v, want 3 non-blank", lines)
	}

	entries := fx.log.Entries() // newest first
	if len(entries) != 5 {
		t.Fatalf("entries = %d, want header + 3 + footer", len(entries))
	}
	if entries[0].Text != logsFooter || entries[4].Text != logsHeader {
		t.Fatalf("framing = %q ... %q", entries[4].Text, entries[0].Text)
	}
	want := []statuslog.Severity{statuslog.Error, statuslog.Warning, statuslog.Info}
	for i, sev := range want {
		if entries[i+1].Severity != sev {
			t.Fatalf("entry %d severity = %v, want %v", i+1, entries[i+1].Severity, sev)
		}
	}
}

func TestService_LogsEmpty(t *testing.T) {
	fx := newFixture(t)

	lines, err := fx.svc.Logs(context.Background())
	if err != nil || lines != nil {
		t.Fatalf("Logs = %v, %v; want nil, nil", lines, err)
	}
	if warn := fx.texts(statuslog.Warning); len(warn) != 1 || warn[0] != "No logs found" {
		t.Fatalf("warnings = %v", warn)
	}
}

func TestService_ClearRefreshesIndicators(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	if err := fx.svc.Upload(ctx, "sklad", writeWorkbook(t, t.TempDir(), "a.xlsx", "x")); err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if !fx.store.Snapshot().Files.Sklad {
		t.Fatal("sklad indicator not set")
	}

	if err := fx.svc.Clear(ctx); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if fx.store.Snapshot().Files.Sklad {
		t.Fatal("sklad indicator still set after clear")
	}
}
