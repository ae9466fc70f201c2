package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Handler HTTP 請求處理器（健康檢查、統計、WebSocket 入口）
type Handler struct {
	router  *Router
	gateway *Gateway
	logger  *slog.Logger
}

// NewHandler 創建 HTTP 處理器
func NewHandler(router *Router, gateway *Gateway, logger *slog.Logger) *Handler {
	return &Handler{
		router:  router,
		gateway: gateway,
		logger:  logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// WebSocket 需要 Hijacker，不能經過 responseWriter 包裝
	mux.HandleFunc("GET /ws", h.gateway.ServeWS)

	mux.HandleFunc("GET /stats", wrap(h.stats))

	// 客戶端常直接連根路徑，升級請求交給 Gateway，其餘當作健康檢查（不限方法）
	mux.HandleFunc("/health", h.upgradeOr(wrap(h.health)))
	mux.HandleFunc("/", h.upgradeOr(wrap(h.landing)))

	return mux
}

// upgradeOr WebSocket 升級請求交給 Gateway，其餘交給 next
func (h *Handler) upgradeOr(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if websocket.IsWebSocketUpgrade(r) {
			h.gateway.ServeWS(w, r)
			return
		}
		next(w, r)
	}
}

// landing 根路徑等同健康檢查，其他路徑 404
func (h *Handler) landing(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("WebSocket relay server"))
		return
	}
	h.health(w, r)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.router.Snapshot().Health(), http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, h.router.Snapshot().Stats(), http.StatusOK)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("encode json failed", "error", err)
	}
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("panic while handling request",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.jsonResponse(w, map[string]any{"error": "internal server error"}, http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
