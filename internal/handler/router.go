package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/buildman/internal/middleware"
)

// HealthChecker はヘルスチェックに必要なDB疎通確認のインターフェース。
// *sql.DBがそのまま満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// SetupAuthRoutes は認証関連のルーティングを設定したchi.Routerを返す。
func SetupAuthRoutes(service AuthServiceInterface, resetService ResetServiceInterface, config AuthHandlerConfig) http.Handler {
	r := chi.NewRouter()
	h := NewAuthHandler(service, resetService, config)

	r.Route("/auth", func(r chi.Router) {
		// メール/パスワード認証
		r.Post("/signup", h.SignUp)
		r.Post("/login", h.SignIn)

		// OAuthフロー
		r.Get("/google/login", h.Login)
		r.Get("/google/callback", h.Callback)

		// パスワード再設定
		r.Post("/reset/request", h.RequestReset)
		r.Post("/reset/complete", h.CompleteReset)

		// セッション管理
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})

	return r
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ヘルスチェック
	HealthChecker HealthChecker

	// メトリクス公開用ハンドラー（nilの場合は/metricsを公開しない）
	MetricsHandler http.Handler

	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig
	Logger            *slog.Logger

	// 認証
	AuthService  AuthServiceInterface
	ResetService ResetServiceInterface
	AuthConfig   AuthHandlerConfig

	// PC構成
	SetupService SetupServiceInterface

	// 履歴
	QueryLister      QueryListerInterface
	StreamSubscriber StreamSubscriberInterface
	StreamMetrics    StreamMetrics

	// 構成生成
	AdvisorService  AdvisorServiceInterface
	GenerateMetrics GenerateMetrics
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）はSession以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルート共通のミドルウェア: Recovery → Logging → SecurityHeaders → CORS
	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.ResetService, deps.AuthConfig)
	setupHandler := NewSetupHandler(deps.SetupService)
	queryHandler := NewQueryHandler(deps.QueryLister, deps.StreamSubscriber, deps.StreamMetrics)
	generateHandler := NewGenerateHandler(deps.AdvisorService, deps.GenerateMetrics)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker.PingContext(req.Context()); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Prometheusスクレイプ
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// CSRFトークン取得（二重送信Cookie方式）
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// 認証ルート
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.SignUp)
		r.Post("/login", authHandler.SignIn)
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/reset/request", authHandler.RequestReset)
		r.Post("/reset/complete", authHandler.CompleteReset)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// PC構成（マージ書き込み）
		r.Route("/api/setup", func(r chi.Router) {
			r.Get("/", setupHandler.GetSetup)
			r.Patch("/", setupHandler.SaveSetup)
		})

		// 提案履歴（一覧とライブ配信）
		r.Route("/api/queries", func(r chi.Router) {
			r.Get("/", queryHandler.ListQueries)
			r.Get("/stream", queryHandler.StreamQueries)
		})

		// 構成生成（生成専用レート制限を追加）
		r.With(deps.RateLimiter.GenerateMiddleware()).Post("/gerar-setup", generateHandler.Generate)
	})

	return r
}
