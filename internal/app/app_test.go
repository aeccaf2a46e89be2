package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eternaltwin/etwin/internal/client/dinoparc"
	"github.com/eternaltwin/etwin/internal/client/hammerfest"
	"github.com/eternaltwin/etwin/internal/client/twinoid"
	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/config"
	"github.com/eternaltwin/etwin/internal/metrics"
	"github.com/eternaltwin/etwin/internal/model"
)

func setTestEnv(t *testing.T) {
	t.Helper()
	t.Setenv("ETWIN_SECRET", "dev_secret")
	t.Setenv("ETWIN_BACKEND", "postgres")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("DB_NAME", "etwin.dev")
	t.Setenv("DB_USER", "etwin.dev.main")
	t.Setenv("DB_PASSWORD", "dev")
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.DB.Name != "etwin.dev" {
		t.Errorf("DB.Name = %q, want %q", cfg.DB.Name, "etwin.dev")
	}

	// 設定されたレベルのJSONログが出力されること
	slog.Default().Debug("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	t.Setenv("ETWIN_SECRET", "")
	t.Setenv("ETWIN_BACKEND", "postgres")
	t.Setenv("DB_NAME", "")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_PASSWORD", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required values, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

// memoryConfig はDBなしで動く設定を返す。
func memoryConfig() *config.Config {
	cfg := config.Default()
	cfg.Backend = config.BackendMemory
	cfg.Secret = "dev_secret"
	cfg.Remote.SafeTransport = false
	return cfg
}

// memApp はメモリのストアとリモートクライアントで組み立てたAppを返す。
func memApp(t *testing.T) (*App, *dinoparc.MemClient, *hammerfest.MemClient) {
	t.Helper()
	clk := clock.NewVirtualClock(time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC))
	dp := dinoparc.NewMemClient(clk)
	hf := hammerfest.NewMemClient(clk)
	registry := prometheus.NewRegistry()

	a, err := assemble(context.Background(), memoryConfig(), clk, registry, metrics.NewCollector(registry), clients{
		dinoparc:   dp,
		hammerfest: hf,
		twinoid:    twinoid.NewMemClient(),
	})
	if err != nil {
		t.Fatalf("Appの組み立てに失敗: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a, dp, hf
}

// TestNew_MemoryBackend はDBなしでAppが組み立てられ、ヘルスチェックが成功することを検証する。
func TestNew_MemoryBackend(t *testing.T) {
	a, err := New(context.Background(), memoryConfig())
	if err != nil {
		t.Fatalf("New がエラーを返した: %v", err)
	}
	defer a.Close()

	router, limiter := a.Router()
	defer limiter.Stop()

	for _, path := range []string{"/healthz", "/metrics"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s のステータス = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}

// TestNew_UnknownBackend は不明なバックエンドがエラーになることを検証する。
func TestNew_UnknownBackend(t *testing.T) {
	cfg := memoryConfig()
	cfg.Backend = "sqlite"
	if _, err := New(context.Background(), cfg); err == nil {
		t.Fatal("不明なバックエンドはエラーになるべき")
	}
}

// TestArchiveDinoparc_ThenServeArchive はCLIのアーカイブ結果がAPIで読めることを検証する。
func TestArchiveDinoparc_ThenServeArchive(t *testing.T) {
	a, dp, _ := memApp(t)
	dp.CreateUser(model.DinoparcServerFr, "1", "alice", "secret")
	dp.SetCoins(model.DinoparcUserIDRef{Server: model.DinoparcServerFr, ID: "1"}, 1000, 2)
	ctx := context.Background()

	var out bytes.Buffer
	creds := model.DinoparcCredentials{Server: model.DinoparcServerFr, Username: "alice", Password: "secret"}
	if err := runArchiveDinoparc(ctx, a, creds, &out); err != nil {
		t.Fatalf("runArchiveDinoparc がエラーを返した: %v", err)
	}
	var result archiveResult
	if err := json.Unmarshal(out.Bytes(), &result); err != nil {
		t.Fatalf("出力がJSONではない: %v\nraw: %s", err, out.String())
	}
	if result.Game != model.RemoteGameDinoparc || result.ID != "1" || result.Username != "alice" {
		t.Errorf("出力 = %+v", result)
	}

	sessions, err := a.stores.tokens.ListDinoparc(ctx)
	if err != nil {
		t.Fatalf("ListDinoparc がエラーを返した: %v", err)
	}
	if len(sessions) != 1 {
		t.Errorf("保存されたセッション数 = %d, want 1", len(sessions))
	}

	router, limiter := a.Router()
	defer limiter.Stop()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/archive/dinoparc/dinoparc.com/users/1", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("ステータス = %d, want %d, body = %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("レスポンスがJSONではない: %v", err)
	}
	if body["username"] != "alice" {
		t.Errorf("username = %v, want alice", body["username"])
	}

	// 保存されたセッションはワーカーで更新できること
	if err := a.Scheduler().RunOnce(ctx); err != nil {
		t.Errorf("RunOnce がエラーを返した: %v", err)
	}
}

// TestArchiveDinoparc_WrongPassword は認証エラーでセッションが保存されないことを検証する。
func TestArchiveDinoparc_WrongPassword(t *testing.T) {
	a, dp, _ := memApp(t)
	dp.CreateUser(model.DinoparcServerFr, "1", "alice", "secret")
	ctx := context.Background()

	creds := model.DinoparcCredentials{Server: model.DinoparcServerFr, Username: "alice", Password: "wrong"}
	err := runArchiveDinoparc(ctx, a, creds, &bytes.Buffer{})
	if err == nil {
		t.Fatal("誤ったパスワードはエラーになるべき")
	}
	if model.KindOf(err) != model.KindInvalidCredentials {
		t.Errorf("エラーの種類 = %v, want %v", model.KindOf(err), model.KindInvalidCredentials)
	}
	sessions, _ := a.stores.tokens.ListDinoparc(ctx)
	if len(sessions) != 0 {
		t.Errorf("失敗時はセッションを保存しないべき, got %d", len(sessions))
	}
}

// TestArchiveHammerfest はHammerfestのアカウントがアーカイブされることを検証する。
func TestArchiveHammerfest(t *testing.T) {
	a, _, hf := memApp(t)
	hf.CreateUser(model.HammerfestServerFr, "42", "bob", "secret")
	ctx := context.Background()

	var out bytes.Buffer
	creds := model.HammerfestCredentials{Server: model.HammerfestServerFr, Username: "bob", Password: "secret"}
	if err := runArchiveHammerfest(ctx, a, creds, &out); err != nil {
		t.Fatalf("runArchiveHammerfest がエラーを返した: %v", err)
	}
	if !strings.Contains(out.String(), `"hammerfest"`) {
		t.Errorf("出力にゲーム名が含まれない: %s", out.String())
	}

	archived, err := a.stores.hammerfest.GetUser(ctx, model.GetHammerfestUserOptions{Server: model.HammerfestServerFr, ID: "42"})
	if err != nil {
		t.Fatalf("GetUser がエラーを返した: %v", err)
	}
	if archived == nil || archived.Username != "bob" {
		t.Errorf("アーカイブされたユーザー = %+v", archived)
	}
}

func TestIsSecure(t *testing.T) {
	tests := []struct {
		uri  string
		want bool
	}{
		{"https://eternaltwin.org", true},
		{"http://localhost:50320", false},
		{"::not a url", false},
	}
	for _, tt := range tests {
		if got := isSecure(tt.uri); got != tt.want {
			t.Errorf("isSecure(%q) = %v, want %v", tt.uri, got, tt.want)
		}
	}
}

func TestNewLimiter(t *testing.T) {
	if newLimiter(0) != nil {
		t.Error("0以下ではリミッターを作らないべき")
	}
	l := newLimiter(0.5)
	if l == nil || l.Burst() != 1 {
		t.Errorf("1未満のレートでもバーストは1であるべき, got %v", l)
	}
	if l := newLimiter(10); l.Burst() != 10 {
		t.Errorf("Burst = %d, want 10", l.Burst())
	}
}
