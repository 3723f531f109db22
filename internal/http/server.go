package http

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"your.org/whatsapp-rest/internal/config"
	"your.org/whatsapp-rest/internal/messaging"
	"your.org/whatsapp-rest/internal/session"
)

// Server encapsulates the HTTP API surface.  It holds the messaging
// service used by the send routes and the session state read by the QR
// and status routes.  When Start is called the server begins listening
// on cfg.HTTPAddr().  Shutdown gracefully stops the listener.
type Server struct {
	cfg     *config.Config
	svc     *messaging.Service
	state   *session.State
	httpSrv *http.Server
	ready   atomic.Bool
}

// NewServer constructs a new HTTP server and wires up all routes using
// Gorilla mux.
func NewServer(cfg *config.Config, svc *messaging.Service, state *session.State) *Server {
	s := &Server{
		cfg:   cfg,
		svc:   svc,
		state: state,
	}
	s.httpSrv = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router returns the route table.
func (s *Server) Router() http.Handler {
	router := mux.NewRouter()
	// Session
	router.HandleFunc("/qr-web", s.handleQRWeb).Methods(http.MethodGet)
	router.HandleFunc("/qr", s.handleQR).Methods(http.MethodGet)
	router.HandleFunc("/connected", s.handleConnected).Methods(http.MethodGet)
	router.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	router.HandleFunc("/valid_number/{numero}", s.handleValidNumber).Methods(http.MethodGet)

	// Messages
	router.HandleFunc("/send", s.handleSend).Methods(http.MethodPost)
	router.HandleFunc("/send-image", s.handleSendImage).Methods(http.MethodPost)
	router.HandleFunc("/send-audio", s.handleSendAudio).Methods(http.MethodPost)
	router.HandleFunc("/send-link", s.handleSendLink).Methods(http.MethodPost)

	// Health and readiness checks
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleReady).Methods(http.MethodGet)
	return router
}

// Start begins serving HTTP requests.  It sets the readiness flag which
// causes the readyz endpoint to return HTTP 200.  If the underlying
// http.Server exits with an error other than http.ErrServerClosed it
// will be returned to the caller.
func (s *Server) Start() error {
	s.ready.Store(true)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.  After shutdown the readyz
// endpoint will return HTTP 503.
func (s *Server) Shutdown(ctx context.Context) error {
	s.ready.Store(false)
	return s.httpSrv.Shutdown(ctx)
}

// handleHealth always returns HTTP 200.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady returns HTTP 200 while the server is serving and 503
// otherwise.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready.Load() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
