package httpapi

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// ClaimsFromContext returns the credential attached by the session gate.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

func withClaims(ctx context.Context, c *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, c)
}

// sessionGate admits requests carrying a valid credential cookie. Invalid
// and expired credentials are rejected and the cookie is cleared.
func (s *Server) sessionGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.verifier.Verify(credentialCookie(r))
		if err != nil {
			if !errors.Is(err, common.ErrUnauthenticated) {
				s.clearCredentialCookie(w)
			}
			s.logger.Debug(r.Context(), "credential rejected", "path", r.URL.Path, "error", err)
			writeAuthError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

func credentialCookie(r *http.Request) string {
	c, err := r.Cookie(common.CredentialCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (s *Server) setCredentialCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.CredentialCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.verifier.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearCredentialCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     common.CredentialCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// rateLimit allows rps requests per second with an equal burst. A
// non-positive rps disables limiting.
func rateLimit(rps int) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := rate.NewLimiter(rate.Limit(rps), rps)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeJSON(w, http.StatusTooManyRequests, messageResponse{Message: "Too many requests"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// instrument records latency per route and logs every request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := ""
		if cur := mux.CurrentRoute(r); cur != nil {
			route, _ = cur.GetPathTemplate()
		}
		dur := time.Since(start)
		s.metrics.ObserveHTTP(route, r.Method, rec.status, dur)
		s.logger.Debug(r.Context(), "request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", dur)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack lets the websocket upgrader take over the connection.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
