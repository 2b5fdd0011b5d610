// Package httpapi exposes the chat server over HTTP: the JSON API under
// /api/v1, the live websocket channel, health and metrics endpoints.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/gophchat/internal/common"
	"github.com/dmitrijs2005/gophchat/internal/logging"
	"github.com/dmitrijs2005/gophchat/internal/server/auth"
	"github.com/dmitrijs2005/gophchat/internal/server/config"
	"github.com/dmitrijs2005/gophchat/internal/server/metrics"
	"github.com/dmitrijs2005/gophchat/internal/server/registry"
	"github.com/dmitrijs2005/gophchat/internal/server/services"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

const APIPrefix = "/api/v1"

// Deps are the collaborators the HTTP layer dispatches to.
type Deps struct {
	Users    *services.UserService
	Chat     *services.ChatService
	Registry *registry.Registry
	Verifier *auth.Verifier
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
}

type Server struct {
	address  string
	config   *config.Config
	logger   logging.Logger
	users    *services.UserService
	chat     *services.ChatService
	registry *registry.Registry
	verifier *auth.Verifier
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader
}

func NewServer(c *config.Config, l logging.Logger, d Deps) *Server {
	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		address:  c.EndpointAddrHTTP,
		config:   c,
		logger:   l.With("module", "http_server"),
		users:    d.Users,
		chat:     d.Chat,
		registry: d.Registry,
		verifier: d.Verifier,
		metrics:  d.Metrics,
		gatherer: gatherer,
		upgrader: makeUpgrader(c.AllowedOrigins),
	}
}

// Handler returns the full middleware chain and routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.instrument)

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := r.PathPrefix(APIPrefix).Subrouter()

	limited := rateLimit(s.config.AuthRateLimit)
	api.Handle("/sign-up", limited(http.HandlerFunc(s.signUp))).Methods(http.MethodPost)
	api.Handle("/login", limited(http.HandlerFunc(s.login))).Methods(http.MethodPost)
	api.HandleFunc("/logout", s.logout).Methods(http.MethodGet)
	api.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)

	protected := api.NewRoute().Subrouter()
	protected.Use(s.sessionGate)
	protected.HandleFunc("/profile", s.profile).Methods(http.MethodGet)
	protected.HandleFunc("/users", s.listUsers).Methods(http.MethodGet)
	protected.HandleFunc("/conversation/{peerId}", s.conversation).Methods(http.MethodGet)
	protected.HandleFunc("/chat/{peerId}", s.sendMessage).Methods(http.MethodPost)

	return cors.New(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", common.ConnectionIDHeaderName},
		AllowCredentials: true,
	}).Handler(r)
}

// Run serves until ctx is cancelled, then closes live channels and shuts
// the server down within the configured grace period.
func (s *Server) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())
		if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info(ctx, "Stopping HTTP server...")

	// hijacked websocket connections are not tracked by Shutdown
	for _, ch := range s.registry.UnbindAll() {
		ch.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownGracePeriod)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
