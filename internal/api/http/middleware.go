package http

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"rentloop-backend/internal/logger"
	"rentloop-backend/internal/security"
)

// AuthMiddleware validates the bearer access token and stores its subject as the user id.
func AuthMiddleware(tm security.TokenManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeErrorCode(w, http.StatusUnauthorized, "unauthenticated", "authorization token is not provided")
				return
			}
			token := header
			if len(token) > 7 && strings.ToUpper(token[0:7]) == "BEARER " {
				token = token[7:]
			}

			claims, err := tm.ValidateToken(token)
			if err != nil {
				writeErrorCode(w, http.StatusUnauthorized, "unauthenticated", err.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(withUserID(r.Context(), claims.UserID())))
		})
	}
}

// UserRateLimiter stores a token bucket per authenticated user. A bucket unused for the idle
// period is evicted; the idle period is never shorter than a full refill, so eviction
// never grants extra requests.
type UserRateLimiter struct {
	users *cache.Cache
	r     rate.Limit
	b     int
}

const defaultLimiterIdle = 10 * time.Minute

func NewUserRateLimiter(r rate.Limit, b int, idle time.Duration) *UserRateLimiter {
	if idle <= 0 {
		idle = defaultLimiterIdle
	}
	if r > 0 && r != rate.Inf {
		if refill := time.Duration(float64(b) / float64(r) * float64(time.Second)); idle < refill {
			idle = refill
		}
	}
	return &UserRateLimiter{
		users: cache.New(idle, idle),
		r:     r,
		b:     b,
	}
}

// GetLimiter returns the limiter for a user, creating it on first use. Every call restarts
// the user's idle timer.
func (l *UserRateLimiter) GetLimiter(userID string) *rate.Limiter {
	if v, ok := l.users.Get(userID); ok {
		limiter := v.(*rate.Limiter)
		l.users.SetDefault(userID, limiter)
		return limiter
	}

	limiter := rate.NewLimiter(l.r, l.b)
	if err := l.users.Add(userID, limiter, cache.DefaultExpiration); err != nil {
		// lost the race to another request from the same user
		if v, ok := l.users.Get(userID); ok {
			return v.(*rate.Limiter)
		}
	}
	return limiter
}

// ActiveUsers reports how many users currently hold a limiter.
func (l *UserRateLimiter) ActiveUsers() int {
	return l.users.ItemCount()
}

// Middleware rejects requests over the user's budget. It must run after AuthMiddleware.
func (l *UserRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		if !l.GetLimiter(userID).Allow() {
			writeErrorCode(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type cachedResponse struct {
	status  int
	headers http.Header
	body    []byte
}

type recordingWriter struct {
	http.ResponseWriter
	status  int
	capture bool
	body    bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if w.capture {
		w.body.Write(b)
	}
	return w.ResponseWriter.Write(b)
}

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	idempotentReplayed   = "Idempotent-Replayed"
)

// Idempotency replays the stored response of a successful POST carrying the same
// Idempotency-Key from the same user. Failed responses are not stored so the client may retry.
func Idempotency(store *cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if r.Method != http.MethodPost || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, _ := UserIDFromContext(r.Context())
			cacheKey := userID + "|" + r.URL.Path + "|" + key
			if v, found := store.Get(cacheKey); found {
				cached := v.(cachedResponse)
				for k, vals := range cached.headers {
					w.Header()[k] = vals
				}
				w.Header().Set(idempotentReplayed, "true")
				w.WriteHeader(cached.status)
				w.Write(cached.body)
				logger.Debug("Replayed idempotent response", "path", r.URL.Path, "user_id", userID)
				return
			}

			rec := &recordingWriter{ResponseWriter: w, capture: true}
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				store.Set(cacheKey, cachedResponse{
					status:  rec.status,
					headers: rec.Header().Clone(),
					body:    rec.body.Bytes(),
				}, ttl)
			}
		})
	}
}

// RequestLogger logs each request at debug level, server errors at error level.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &recordingWriter{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status >= http.StatusInternalServerError {
			logger.ErrorContext(r.Context(), "HTTP request failed", "method", r.Method, "path", r.URL.Path,
				"status", rec.status, "duration", time.Since(start))
			return
		}
		logger.Debug("HTTP request", "method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration", time.Since(start))
	})
}
