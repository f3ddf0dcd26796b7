package actionlimit

import (
	"context"
	"net/http"
	"time"

	"action-limiter/actionlimit/domain"
)

// Limiter é o que as rotas e o middleware precisam do serviço.
// *application.Service implementa.
type Limiter interface {
	Inspect(ctx context.Context, c domain.Category) domain.State
	RecordAction(ctx context.Context, c domain.Category) bool
	Reset(ctx context.Context, c domain.Category)
	Snapshot(ctx context.Context) []domain.State
}

type Options struct {
	Limiter             Limiter
	Category            domain.Category
	RejectStatus        int
	AddRateLimitHeaders bool
	Clock               domain.Clock
}

// Middleware limita next por categoria: consulta, e se houver capacidade
// registra a ação antes de chamar next. A ação conta mesmo que next falhe.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return func(next http.Handler) http.Handler {
		if opts.Limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			st := opts.Limiter.Inspect(ctx, opts.Category)
			if st.Unlimited {
				// sem política não há cabeçalhos a montar
				opts.Limiter.RecordAction(ctx, opts.Category)
				next.ServeHTTP(w, r)
				return
			}
			if st.CanPerform && opts.Limiter.RecordAction(ctx, opts.Category) {
				if opts.AddRateLimitHeaders {
					setRateLimitHeaders(w, opts.Limiter.Inspect(ctx, opts.Category))
				}
				next.ServeHTTP(w, r)
				return
			}

			// pode ter esgotado entre o Inspect e o RecordAction
			st = opts.Limiter.Inspect(ctx, opts.Category)
			if opts.AddRateLimitHeaders {
				setRateLimitHeaders(w, st)
			}
			writeThrottled(w, st, opts.Clock(), opts.RejectStatus)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, st domain.State) {
	if st.Unlimited {
		return
	}
	w.Header().Set("X-RateLimit-Category", string(st.Category))
	w.Header().Set("X-RateLimit-Limit", formatInt(st.Limit))
	w.Header().Set("X-RateLimit-Remaining", formatInt(st.Remaining))
	if st.HasReset {
		w.Header().Set("X-RateLimit-Reset", formatInt64(st.ResetTime.Unix()))
	}
}

func writeThrottled(w http.ResponseWriter, st domain.State, now time.Time, status int) {
	w.Header().Set("Retry-After", formatInt(int(st.RetryAfter(now).Seconds())))
	msg := "rate limit exceeded"
	if in, ok := ResetIn(st, now); ok {
		if in == AvailableNow {
			msg += ": " + in
		} else {
			msg += ": try again in " + in
		}
	}
	http.Error(w, msg, status)
}
