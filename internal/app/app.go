// Package app はアプリケーションの依存関係の組み立てと、各起動モードの実行を提供する。
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/eternaltwin/etwin/internal/client/dinoparc"
	"github.com/eternaltwin/etwin/internal/client/dinorpg"
	"github.com/eternaltwin/etwin/internal/client/hammerfest"
	"github.com/eternaltwin/etwin/internal/client/popotamo"
	"github.com/eternaltwin/etwin/internal/client/twinoid"
	"github.com/eternaltwin/etwin/internal/clock"
	"github.com/eternaltwin/etwin/internal/config"
	"github.com/eternaltwin/etwin/internal/database"
	"github.com/eternaltwin/etwin/internal/handler"
	"github.com/eternaltwin/etwin/internal/logger"
	"github.com/eternaltwin/etwin/internal/metrics"
	"github.com/eternaltwin/etwin/internal/middleware"
	"github.com/eternaltwin/etwin/internal/remote"
	"github.com/eternaltwin/etwin/internal/repository"
	"github.com/eternaltwin/etwin/internal/security"
	"github.com/eternaltwin/etwin/internal/service"
	"github.com/eternaltwin/etwin/internal/user"
	"github.com/eternaltwin/etwin/internal/uuidgen"
	"github.com/eternaltwin/etwin/internal/worker/refresh"
)

// sessionMaxAge はetwinセッションCookieの有効期間（30日）。
const sessionMaxAge = 30 * 24 * 60 * 60

// Init はアプリケーションの初期化を行う。
// 設定ファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでログを作り直す
	logger.SetupDefaultWithLevel(w, cfg.LogLevel)
	return cfg, nil
}

// userBackend はユーザーとetwinセッションのストア。
type userBackend interface {
	repository.UserStore
	repository.AuthStore
}

// stores はバックエンドごとのストアの組。
type stores struct {
	users      userBackend
	links      repository.LinkStore
	tokens     repository.TokenStore
	dinoparc   repository.DinoparcStore
	hammerfest repository.HammerfestStore
	twinoid    repository.TwinoidStore
}

// clients はリモートゲームのクライアントの組。
type clients struct {
	dinoparc   dinoparc.Client
	hammerfest hammerfest.Client
	twinoid    twinoid.Client
	dinorpg    *dinorpg.HTTPClient
	popotamo   *popotamo.HTTPClient
}

// App は設定から組み立てたアプリケーションの依存関係を保持する。
type App struct {
	cfg      *config.Config
	db       *sql.DB // memoryバックエンドではnil
	clock    clock.Clock
	registry *prometheus.Registry
	metrics  *metrics.Collector
	stores   stores
	clients  clients

	users      *user.Service
	links      *service.LinkService
	dinoparc   *service.DinoparcService
	hammerfest *service.HammerfestService
	twinoid    *service.TwinoidService
}

// New は設定に従ってストア、リモートクライアント、サービスを組み立てる。
// postgresバックエンドの場合はDB接続を開き、接続を確認する。
// 呼び出し側は Close を defer すること。
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	clk := clock.SystemClock{}
	return assemble(ctx, cfg, clk, registry, collector, newClients(cfg.Remote, clk, collector))
}

// assemble は与えられたリモートクライアントでAppを組み立てる。
func assemble(ctx context.Context, cfg *config.Config, clk clock.Clock, registry *prometheus.Registry, collector *metrics.Collector, c clients) (*App, error) {
	a := &App{
		cfg:      cfg,
		clock:    clk,
		registry: registry,
		metrics:  collector,
		clients:  c,
	}
	if err := a.openStores(ctx); err != nil {
		return nil, err
	}

	a.users = user.NewService(a.stores.users, a.stores.users, security.NewPasswordHasher(), a.clock)
	a.dinoparc = service.NewDinoparcService(a.stores.dinoparc, a.stores.links, a.stores.users, a.clients.dinoparc)
	a.hammerfest = service.NewHammerfestService(a.stores.hammerfest, a.stores.links, a.stores.users, a.clients.hammerfest)
	a.twinoid = service.NewTwinoidService(a.stores.twinoid, a.stores.links, a.stores.users, a.clients.twinoid, cfg.Remote.TwinoidAPIToken)
	a.links = service.NewLinkService(service.LinkServiceDeps{
		Dinoparc:        a.clients.dinoparc,
		Hammerfest:      a.clients.hammerfest,
		Twinoid:         a.clients.twinoid,
		DinoparcStore:   a.stores.dinoparc,
		HammerfestStore: a.stores.hammerfest,
		TwinoidStore:    a.stores.twinoid,
		Tokens:          a.stores.tokens,
		Links:           a.stores.links,
	})

	return a, nil
}

// openStores はバックエンドに応じたストアを生成する。
func (a *App) openStores(ctx context.Context) error {
	touches := repository.WithTouchRecorder(a.metrics)

	switch a.cfg.Backend {
	case config.BackendMemory:
		a.stores = stores{
			users:      repository.NewMemUserStore(a.clock, uuidgen.Random{}),
			links:      repository.NewMemLinkStore(a.clock),
			tokens:     repository.NewMemTokenStore(a.clock),
			dinoparc:   repository.NewMemDinoparcStore(a.clock, touches),
			hammerfest: repository.NewMemHammerfestStore(a.clock, touches),
			twinoid:    repository.NewMemTwinoidStore(a.clock, touches),
		}
		slog.Info("メモリバックエンドを使用します")
		return nil
	case config.BackendPostgres:
	default:
		return fmt.Errorf("unknown backend: %q", a.cfg.Backend)
	}

	db, err := database.OpenWithPool(a.cfg.DB.DatabaseURL(), a.cfg.DB.MaxOpenConns)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("データベースに接続しました",
		slog.String("host", a.cfg.DB.Host),
		slog.String("name", a.cfg.DB.Name),
	)

	cipher, err := security.NewEmailCipher(a.cfg.Secret, 0)
	if err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to create email cipher: %w", err)
	}

	a.db = db
	a.stores = stores{
		users:      repository.NewPostgresUserStore(db, a.clock, uuidgen.Random{}, cipher),
		links:      repository.NewPostgresLinkStore(db, a.clock),
		tokens:     repository.NewPostgresTokenStore(db, a.clock),
		dinoparc:   repository.NewPostgresDinoparcStore(db, a.clock, touches),
		hammerfest: repository.NewPostgresHammerfestStore(db, a.clock, touches),
		twinoid:    repository.NewPostgresTwinoidStore(db, a.clock, touches),
	}
	return nil
}

// newClients はリモートゲームごとのHTTPクライアントを生成する。レートリミッターはゲームごとに持つ。
func newClients(cfg config.RemoteConfig, clk clock.Clock, recorder remote.FetchRecorder) clients {
	var transport http.RoundTripper
	if cfg.SafeTransport {
		transport = security.NewRemoteGuard().NewSafeTransport(cfg.Timeout)
	}
	httpClient := func(userAgent string) *http.Client {
		return remote.NewHTTPClient(userAgent, remote.Options{
			Timeout:   cfg.Timeout,
			Transport: transport,
			Limiter:   newLimiter(cfg.RequestsPerSecond),
		})
	}

	return clients{
		dinoparc:   dinoparc.NewHTTPClient(httpClient(dinoparc.UserAgent), clk, recorder, slog.Default()),
		hammerfest: hammerfest.NewHTTPClient(httpClient(hammerfest.UserAgent), clk, security.NewContentSanitizer(), recorder, slog.Default()),
		twinoid:    twinoid.NewHTTPClient(httpClient(twinoid.UserAgent), recorder, slog.Default()),
		dinorpg:    dinorpg.NewHTTPClient(httpClient(dinorpg.UserAgent), recorder, slog.Default()),
		popotamo:   popotamo.NewHTTPClient(httpClient(popotamo.UserAgent), recorder, slog.Default()),
	}
}

// newLimiter は1秒あたりのリクエスト数からリミッターを生成する。0以下なら制限しない。
func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Close はDB接続を閉じる。
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}

// Router はAPIサーバーのハンドラーを組み立てる。
// 返り値のRateLimiterは呼び出し側がサーバー停止時に Stop すること。
func (a *App) Router() (http.Handler, *middleware.RateLimiter) {
	secure := isSecure(a.cfg.ExternalURI)
	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())

	deps := &handler.RouterDeps{
		Logger:      slog.Default(),
		Sessions:    a.users,
		RateLimiter: limiter,
		CSRF:        middleware.CSRFConfig{CookieSecure: secure},
		Metrics:     metrics.Handler(a.registry),

		AuthService: a.users,
		AuthConfig: handler.AuthHandlerConfig{
			CookieSecure:  secure,
			SessionMaxAge: sessionMaxAge,
		},

		Dinoparc:   a.dinoparc,
		Hammerfest: a.hammerfest,
		Twinoid:    a.twinoid,

		UserService: a.users,
		LinkService: a.links,
	}
	// memoryバックエンドでは常に正常とする
	if a.db != nil {
		deps.HealthChecker = a.db
	}
	return handler.NewRouter(deps), limiter
}

// Scheduler はセッション更新ワーカーのスケジューラを組み立てる。
func (a *App) Scheduler() *refresh.Scheduler {
	return refresh.NewScheduler(refresh.SchedulerDeps{
		Sessions:          a.stores.tokens,
		DinoparcClient:    a.clients.dinoparc,
		DinoparcArchive:   a.dinoparc,
		HammerfestClient:  a.clients.hammerfest,
		HammerfestArchive: a.hammerfest,
		Clock:             a.clock,
		Recorder:          a.metrics,
		Logger:            slog.Default(),
		MaxConcurrency:    a.cfg.Worker.MaxConcurrent,
	})
}

// isSecure は外部URIがhttpsかどうかを返す。解釈できない場合はfalse。
func isSecure(externalURI string) bool {
	u, err := url.Parse(externalURI)
	if err != nil {
		return false
	}
	return u.Scheme == "https"
}
