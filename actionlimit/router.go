package actionlimit

import (
	"log/slog"
	"net/http"
	"time"

	"action-limiter/actionlimit/domain"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// StateResponse é a forma JSON de um domain.State.
//
// Remaining é null quando a categoria não tem política (ilimitado): JSON não
// tem infinito.
type StateResponse struct {
	Category   string  `json:"category"`
	Unlimited  bool    `json:"unlimited"`
	Limit      int     `json:"limit,omitempty"`
	WindowMs   int64   `json:"windowMs,omitempty"`
	Used       int     `json:"used"`
	Remaining  *int    `json:"remaining"`
	CanPerform bool    `json:"canPerform"`
	ResetTime  *int64  `json:"resetTime,omitempty"`
	ResetIn    *string `json:"resetIn,omitempty"`
}

type RecordResponse struct {
	Recorded bool          `json:"recorded"`
	State    StateResponse `json:"state"`
}

func NewStateResponse(st domain.State, now time.Time) StateResponse {
	out := StateResponse{
		Category:   string(st.Category),
		Unlimited:  st.Unlimited,
		Limit:      st.Limit,
		WindowMs:   st.Window.Milliseconds(),
		Used:       st.Used,
		CanPerform: st.CanPerform,
	}
	if !st.Unlimited {
		remaining := st.Remaining
		out.Remaining = &remaining
	}
	if st.HasReset {
		ms := st.ResetTime.UnixMilli()
		out.ResetTime = &ms
	}
	if in, ok := ResetIn(st, now); ok {
		out.ResetIn = &in
	}
	return out
}

type handler struct {
	limiter Limiter
	clock   domain.Clock
	logger  *slog.Logger
}

type RouterOption func(*handler)

func WithRouterClock(c domain.Clock) RouterOption {
	return func(h *handler) {
		if c != nil {
			h.clock = c
		}
	}
}

func WithRouterLogger(l *slog.Logger) RouterOption {
	return func(h *handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewRouter monta as rotas /v1/limits sobre o limiter.
func NewRouter(l Limiter, opts ...RouterOption) chi.Router {
	h := &handler{limiter: l, clock: time.Now, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	r.Route("/v1/limits", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/{category}", h.inspect)
		r.Post("/{category}/actions", h.record)
		r.Delete("/{category}", h.reset)
	})
	return r
}

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	states := h.limiter.Snapshot(r.Context())
	out := make([]StateResponse, 0, len(states))
	for _, st := range states {
		out = append(out, NewStateResponse(st, now))
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *handler) inspect(w http.ResponseWriter, r *http.Request) {
	st := h.limiter.Inspect(r.Context(), category(r))
	h.writeJSON(w, http.StatusOK, NewStateResponse(st, h.clock()))
}

func (h *handler) record(w http.ResponseWriter, r *http.Request) {
	c := category(r)
	recorded := h.limiter.RecordAction(r.Context(), c)
	st := h.limiter.Inspect(r.Context(), c)
	now := h.clock()

	status := http.StatusCreated
	if !recorded {
		status = http.StatusTooManyRequests
		w.Header().Set("Retry-After", formatInt(int(st.RetryAfter(now).Seconds())))
	}
	setRateLimitHeaders(w, st)
	h.writeJSON(w, status, RecordResponse{Recorded: recorded, State: NewStateResponse(st, now)})
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	h.limiter.Reset(r.Context(), category(r))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := sonic.Marshal(v)
	if err != nil {
		h.logger.Error("encode response", slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func category(r *http.Request) domain.Category {
	return domain.Category(chi.URLParam(r, "category"))
}
