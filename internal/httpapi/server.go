// ABOUTME: HTTP server exposing the chat endpoint and session listings
// ABOUTME: Routes with gorilla/mux and shuts down when its context ends
package httpapi

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/harper/ragchat/internal/core"
	"github.com/harper/ragchat/internal/models"
)

// DefaultMaxBodyBytes bounds a chat request including its base64 attachment
const DefaultMaxBodyBytes = 32 << 20

// WelcomeMessage is returned by GET /
const WelcomeMessage = "Welcome to the RAG + LLM Chatbot API"

// Chatter answers chat requests
type Chatter interface {
	Chat(ctx context.Context, req models.ChatRequest) (*models.ChatResult, error)
}

// SessionSource lists sessions and returns their history
type SessionSource interface {
	ListSessions() ([]models.SessionSummary, error)
	History(id string) (*models.Session, error)
}

// IndexInfo describes the loaded index for health checks
type IndexInfo interface {
	Len() int
	Dimension() int
}

// CacheInfo reports cache counters for health checks
type CacheInfo interface {
	Stats() core.CacheStats
}

// Options configures a Server. Index and Cache may be nil.
type Options struct {
	Addr         string
	MaxBodyBytes int64
	Index        IndexInfo
	Cache        CacheInfo
}

// Server is the HTTP front end for the orchestrator
type Server struct {
	chat     Chatter
	sessions SessionSource
	opts     Options
	router   *mux.Router
}

// NewServer creates a server and registers its routes
func NewServer(chat Chatter, sessions SessionSource, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if opts.Addr == "" {
		opts.Addr = ":8000"
	}

	s := &Server{chat: chat, sessions: sessions, opts: opts}

	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	r.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions", s.handleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowed)

	r.Use(logRequests)
	s.router = r
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		// Generation plus retries can take a while
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}()

	log.Printf("[HTTP] Listening on %s", s.opts.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// statusRecorder captures the response status for logging
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Printf("[HTTP] %s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond))
	})
}
