package common

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// CodeIdempotentReplay is returned for a repeated Idempotency-Key.
const CodeIdempotentReplay = "IDEMPOTENT_REPLAY"

// Idem provides an Idempotency-Key middleware backed by Redis. Keys are
// scoped by caller, method and path, so two callers never collide and a client
// may reuse one key across endpoints. The caller is the authenticated user, or
// the client IP for guests.
type Idem struct {
	R   *redis.Client
	TTL time.Duration
}

func idemKey(r *http.Request, header string) string {
	caller := "ip:" + ClientIP(r)
	if userID, ok := UserID(r.Context()); ok {
		caller = "user:" + userID
	}
	sum := sha256.Sum256([]byte(caller + " " + r.Method + " " + r.URL.Path + " " + header))
	return "idem:" + hex.EncodeToString(sum[:])
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.ResponseWriter.Write(p)
}

// Middleware rejects a repeated Idempotency-Key with 409 while the key is live.
// Only a 2xx response keeps the key; anything else releases it so the client
// can fix the request or retry. Requests without the header pass through
// untouched.
func (i Idem) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Idempotency-Key")
		if header == "" || i.R == nil {
			next.ServeHTTP(w, r)
			return
		}
		ttl := i.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		key := idemKey(r, header)
		ok, err := i.R.SetNX(r.Context(), key, "locked", ttl).Result()
		if err != nil {
			JSONError(w, http.StatusInternalServerError, CodeInternal, "idempotency store error", map[string]any{"error": err.Error()})
			return
		}
		if !ok {
			JSONError(w, http.StatusConflict, CodeIdempotentReplay, "duplicate request", nil)
			return
		}

		sw := &statusWriter{ResponseWriter: w}
		next.ServeHTTP(sw, r)
		if sw.status < http.StatusOK || sw.status >= http.StatusMultipleChoices {
			_ = i.R.Del(context.WithoutCancel(r.Context()), key).Err()
		}
	})
}
