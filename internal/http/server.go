package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type Server struct {
	Router *chi.Mux
}

func NewServer(handler *Handler) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "litecoin payment gateway",
		})
	})

	r.Route("/api/payment", func(r chi.Router) {
		r.Post("/create", handler.CreateOrder)
		r.Get("/status/{orderId}", handler.GetStatus)
		r.Post("/refresh/{orderId}", handler.Refresh)
		r.Get("/plans", handler.Plans)
		r.Get("/user/{email}", handler.UserOrders)
	})

	r.Route("/api/webhook", func(r chi.Router) {
		r.Post("/blockcypher", handler.Webhook)
		r.Post("/manual-confirm", handler.ManualConfirm)
	})

	r.Get("/api/monitor/status", handler.MonitorStatus)

	return &Server{Router: r}
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
