package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/custard-cli/internal/model"
	"github.com/sells-group/custard-cli/internal/planner"
	"github.com/sells-group/custard-cli/internal/resilience"
	"github.com/sells-group/custard-cli/internal/service"
	"github.com/sells-group/custard-cli/internal/telemetry"
)

// routerConfig is what newRouter needs beyond the service.
type routerConfig struct {
	CORSOrigins    []string
	RequestTimeout time.Duration
	Metrics        *telemetry.Metrics
	Breakers       *resilience.Breakers
}

// newRouter mounts the HTTP API on a chi router.
func newRouter(svc *service.Service, rc routerConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	origins := rc.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	if rc.Metrics != nil {
		r.Use(rc.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", rc.Metrics.Handler())
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		body := map[string]any{"status": "ok"}
		if rc.Breakers != nil {
			states := map[string]string{}
			for name, s := range rc.Breakers.States() {
				states[name] = s.String()
			}
			body["breakers"] = states
		}
		writeJSON(w, http.StatusOK, body)
	})

	h := &handlers{svc: svc}
	r.Route("/api/v1", func(r chi.Router) {
		if rc.RequestTimeout > 0 {
			r.Use(middleware.Timeout(rc.RequestTimeout))
		}
		r.Get("/signals/{storeID}", h.signals)
		r.Get("/reliability", h.reliabilityBoard)
		r.Get("/reliability/{storeID}", h.reliability)
		r.Get("/today/{storeID}", h.today)
		r.Get("/plan", h.plan)
	})
	return r
}

type handlers struct {
	svc *service.Service
}

func (h *handlers) signals(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	date, err := dateParam(r, "date")
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.Signals(r.Context(), chi.URLParam(r, "storeID"), date, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) reliability(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Reliability(r.Context(), chi.URLParam(r, "storeID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) reliabilityBoard(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}
	recs, err := h.svc.ReliabilityBoard(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stores": recs})
}

func (h *handlers) today(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r, "date")
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.Today(r.Context(), chi.URLParam(r, "storeID"), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handlers) plan(w http.ResponseWriter, r *http.Request) {
	q, err := planner.ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}
	resp, err := h.svc.Plan(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func intParam(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &planner.ValidationError{Field: key, Reason: "must be an integer"}
	}
	return n, nil
}

func dateParam(r *http.Request, key string) (time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := model.ParseDate(raw)
	if err != nil {
		return time.Time{}, &planner.ValidationError{Field: key, Reason: "must be YYYY-MM-DD"}
	}
	return d, nil
}

// writeError maps service errors onto status codes: caller mistakes are
// 400, unknown stores 404, an unreachable primary store 503.
func writeError(w http.ResponseWriter, err error) {
	var verr *planner.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": verr.Reason, "field": verr.Field})
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "store not found"})
	case errors.Is(err, service.ErrUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "storage unavailable"})
	default:
		zap.L().Error("request failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("write response failed", zap.Error(err))
	}
}
