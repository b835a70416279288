// Package admin serves a small operations surface: a chi mux, bound to
// its own listener separate from the protocol servers, exposing
// Prometheus metrics, a liveness probe and a couple of debug views, all
// guarded by HTTP Basic Auth.
package admin

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"net/http"
	"time"

	auth "github.com/abbot/go-http-auth"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rclone/multiserve/internal/accesslog"
	"github.com/rclone/multiserve/internal/dispatcher"
	"github.com/rclone/multiserve/internal/logx"
)

// Credentials guards the admin mux behind HTTP Basic Auth. The zero
// value disables auth, for local development or when a front proxy
// already authenticates operators.
type Credentials struct {
	Realm    string
	Username string
	Password string
}

var md5Magic = []byte("$1$")

// newSecretProvider builds the auth.SecretProvider go-http-auth needs:
// a single static account, hashed once at startup so the plaintext
// password is never compared directly.
func newSecretProvider(creds Credentials) auth.SecretProvider {
	salt := make([]byte, 8)
	if _, err := rand.Read(salt); err != nil {
		salt = []byte("multisrv")
	}
	hashed := string(auth.MD5Crypt([]byte(creds.Password), salt, md5Magic))
	return func(user, realm string) string {
		if user != creds.Username {
			return ""
		}
		return hashed
	}
}

// Mux builds the admin HTTP handler. gatherer is served at /metrics,
// disp backs /debug/pending-tasks, and log (optional, may be nil)
// backs /debug/recent.
func Mux(gatherer prometheus.Gatherer, disp *dispatcher.Dispatcher, log *accesslog.Log, creds Credentials) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	var authenticator *auth.BasicAuth
	if creds.Username != "" {
		authenticator = auth.NewBasicAuthenticator(creds.Realm, newSecretProvider(creds))
	}
	wrap := func(h http.HandlerFunc) http.HandlerFunc {
		if authenticator == nil {
			return h
		}
		return auth.JustCheck(authenticator, h)
	}

	r.Get("/metrics", wrap(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP))
	r.Get("/healthz", wrap(healthzHandler))
	r.Get("/debug/pending-tasks", wrap(pendingTasksHandler(disp)))
	if log != nil {
		r.Get("/debug/recent", wrap(recentHandler(log)))
	}
	return r
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logx.Errorf(logx.S("admin"), "encode response: %v", err)
	}
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func pendingTasksHandler(disp *dispatcher.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]int{"pending_tasks": disp.GetPendingTasksEstimate()})
	}
}

func recentHandler(log *accesslog.Log) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := 50
		lines, err := log.Recent(n)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]interface{}{"entries": lines})
	}
}

// Server wraps an http.Server bound to its own listener address,
// separate from the protocol servers' reactor-driven listeners: the
// admin mux is low-traffic control-plane, not a candidate for the
// epoll-style channel machinery the rest of this module uses.
type Server struct {
	httpSrv *http.Server
}

// NewServer builds (but does not start) the admin HTTP server.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		httpSrv: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// ListenAndServe runs the admin server until it errors or Shutdown is
// called; http.ErrServerClosed is swallowed as the expected shutdown
// signal.
func (s *Server) ListenAndServe() error {
	err := s.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}
