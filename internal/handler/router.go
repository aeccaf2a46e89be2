package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/eternaltwin/etwin/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger        *slog.Logger
	Sessions      middleware.SessionAuthenticator
	RateLimiter   *middleware.RateLimiter
	CSRF          middleware.CSRFConfig
	HealthChecker Pinger // nil可
	Metrics       http.Handler

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// アーカイブ
	Dinoparc   DinoparcUserGetter
	Hammerfest HammerfestUserGetter
	Twinoid    TwinoidUserGetter

	// ユーザーとリンク
	UserService UserServiceInterface
	LinkService LinkServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Recovery → RealIP → SecurityHeaders → Session → Logging → CSRF → RateLimit(General)
//
// /healthz と /metrics はミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.NewRecoveryMiddleware(logger))

	r.Get("/healthz", NewHealthHandler(deps.HealthChecker))
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics)
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	archiveHandler := NewArchiveHandler(deps.Dinoparc, deps.Hammerfest, deps.Twinoid)
	userHandler := NewUserHandler(deps.UserService)
	linkHandler := NewLinkHandler(deps.LinkService)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(chimw.RealIP)
		r.Use(middleware.NewSecurityHeadersMiddleware(deps.CSRF.CookieSecure))
		r.Use(middleware.NewSessionMiddleware(deps.Sessions))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Handle("/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.Get("/self", authHandler.Self)
		})

		// アーカイブはゲストにも公開する
		r.Get("/archive/{game}/{server}/users/{id}", archiveHandler.GetUser)

		r.Route("/users", func(r chi.Router) {
			r.Post("/", userHandler.Register)
			r.Get("/{id}", userHandler.GetUser)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireUser)
				r.Delete("/{id}", userHandler.Withdraw)

				r.Route("/{id}/links", func(r chi.Router) {
					// リモートへのログインを伴うため専用のレート制限を追加
					r.With(deps.RateLimiter.LinkMiddleware()).Post("/dinoparc", linkHandler.LinkDinoparc)
					r.With(deps.RateLimiter.LinkMiddleware()).Post("/hammerfest", linkHandler.LinkHammerfest)
					r.With(deps.RateLimiter.LinkMiddleware()).Post("/twinoid", linkHandler.LinkTwinoid)
					r.Delete("/{game}/{server}/{remote_id}", linkHandler.Unlink)
				})
			})
		})
	})

	return r
}
