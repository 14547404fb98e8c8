package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/IvaTomevska/loob-beta/internal/handler/chat"
	"github.com/IvaTomevska/loob-beta/internal/handler/stream"
	"github.com/IvaTomevska/loob-beta/internal/logging"
	middlewarePkg "github.com/IvaTomevska/loob-beta/internal/middleware"
	"github.com/IvaTomevska/loob-beta/pkg/utils"
)

// RouterDeps 是 HTTP 层依赖的服务。
type RouterDeps struct {
	Pipeline    chat.Pipeline
	Transcripts chat.Transcripts
	// Hub 可选，为空时不挂载分析订阅路由
	Hub      stream.Subscriber
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
}

// NewRouter 将 HTTP 路由连接到核心服务。
func NewRouter(deps RouterDeps) http.Handler {
	logger := logging.OrNop(deps.Logger)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}

	chatHandler := chat.New(deps.Pipeline, deps.Transcripts, logger)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)

		if deps.Hub != nil {
			stream.New(deps.Hub, logger).RegisterRoutes(api)
		}
	})

	return r
}
