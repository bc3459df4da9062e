// Package server exposes the turn state to the annotation panel over HTTP.
package server

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/xkilldash9x/franz/api/schemas"
	"github.com/xkilldash9x/franz/internal/config"
	"github.com/xkilldash9x/franz/internal/turnstate"
)

//go:embed panel.html
var defaultPanel []byte

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

const compressionLevel = 5

// TurnState is the slice of the shared turn record the protocol needs.
type TurnState interface {
	Snapshot() schemas.Snapshot
	PendingSequence() int
	SubmitAnnotation(seq int, imageB64 string) error
	Inject(text string)
}

// Server serves the sync protocol.
type Server struct {
	cfg       config.ServerConfig
	state     TurnState
	captureW  int
	captureH  int
	ui        atomic.Pointer[map[string]interface{}]
	ready     chan struct{}
	readyOnce sync.Once
	logger    *zap.Logger
}

// New creates a Server. captureW and captureH are reported to the panel so it
// can size its canvas.
func New(cfg config.ServerConfig, captureW, captureH int, ui map[string]interface{}, state TurnState, logger *zap.Logger) (*Server, error) {
	if state == nil {
		return nil, errors.New("turn state cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	s := &Server{
		cfg:      cfg,
		state:    state,
		captureW: captureW,
		captureH: captureH,
		ready:    make(chan struct{}),
		logger:   logger.Named("sync_server"),
	}
	s.SetUIConfig(ui)
	return s, nil
}

// SetUIConfig replaces the opaque UI block served on /config.
func (s *Server) SetUIConfig(ui map[string]interface{}) {
	if ui == nil {
		ui = map[string]interface{}{}
	}
	s.ui.Store(&ui)
}

// Ready is closed once the server accepts connections.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(protocolHeaders)
	if s.cfg.Compress {
		compressor := middleware.NewCompressor(compressionLevel, "application/json", "text/html")
		compressor.SetEncoder("br", func(w io.Writer, level int) io.Writer {
			return brotli.NewWriterLevel(w, level)
		})
		r.Use(compressor.Handler)
	}

	r.Get("/", s.handlePanel)
	r.Get("/index.html", s.handlePanel)
	r.Get("/config", s.handleConfig)
	r.Get("/state", s.handleState)
	r.Get("/healthz", handleHealthCheck)
	r.Post("/annotated", s.handleAnnotated)
	r.Post("/inject", s.handleInject)

	r.NotFound(unrouted)
	r.MethodNotAllowed(unrouted)
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// A bind failure is returned immediately.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("binding %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		ErrorLog:          zap.NewStdLog(s.logger),
	}
	srv.SetKeepAlivesEnabled(false)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		s.logger.Info("Shutting down sync server...")

		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Sync server shutdown error", zap.Error(err))
		}
	}()

	s.logger.Info("Sync server listening", zap.String("address", ln.Addr().String()))
	s.readyOnce.Do(func() { close(s.ready) })
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving sync protocol: %w", err)
	}
	<-shutdownDone
	s.logger.Info("Sync server stopped.")
	return nil
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	data := defaultPanel
	if s.cfg.PanelPath != "" {
		b, err := os.ReadFile(s.cfg.PanelPath)
		if err != nil {
			s.logger.Warn("Panel file unreadable; serving the built-in panel.",
				zap.String("path", s.cfg.PanelPath), zap.Error(err))
		} else {
			data = b
		}
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type configResponse struct {
	UI            map[string]interface{} `json:"ui"`
	CaptureWidth  int                    `json:"capture_width"`
	CaptureHeight int                    `json:"capture_height"`
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, configResponse{
		UI:            *s.ui.Load(),
		CaptureWidth:  s.captureW,
		CaptureHeight: s.captureH,
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.Snapshot())
}

func handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

type ackResponse struct {
	OK  bool   `json:"ok"`
	Seq *int   `json:"seq,omitempty"`
	Err string `json:"err,omitempty"`
}

// annotatedRequest keeps the fields loosely typed so a wrong type is reported
// as a mismatch or a short image rather than invalid JSON.
type annotatedRequest struct {
	Seq      interface{} `json:"seq"`
	ImageB64 interface{} `json:"image_b64"`
}

func (s *Server) handleAnnotated(w http.ResponseWriter, r *http.Request) {
	var req annotatedRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.logger.Warn("Rejected annotation: invalid json.", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ackResponse{Err: "invalid json"})
		return
	}

	seq, ok := sequenceOf(req.Seq)
	if !ok {
		msg := fmt.Sprintf("seq mismatch: got %s expected %d", rawString(req.Seq), s.state.PendingSequence())
		s.logger.Info("Rejected annotation.", zap.String("reason", msg))
		writeJSON(w, http.StatusConflict, ackResponse{Err: msg})
		return
	}
	img, _ := req.ImageB64.(string)

	err := s.state.SubmitAnnotation(seq, img)
	switch {
	case err == nil:
		s.logger.Info("Annotation accepted.", zap.Int("seq", seq), zap.Int("len", len(img)))
		writeJSON(w, http.StatusOK, ackResponse{OK: true, Seq: &seq})
	case errors.Is(err, turnstate.ErrSequenceMismatch):
		s.logger.Info("Rejected annotation.", zap.String("reason", err.Error()))
		writeJSON(w, http.StatusConflict, ackResponse{Err: err.Error()})
	case errors.Is(err, turnstate.ErrImageTooShort):
		s.logger.Warn("Rejected annotation.", zap.Int("seq", seq), zap.Int("len", len(img)), zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ackResponse{Err: err.Error()})
	default:
		s.logger.Error("Annotation submission failed.", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ackResponse{Err: err.Error()})
	}
}

type injectRequest struct {
	VLMText interface{} `json:"vlm_text"`
}

func (s *Server) handleInject(w http.ResponseWriter, r *http.Request) {
	var req injectRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.logger.Warn("Rejected injection: invalid json.", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, ackResponse{Err: "invalid json"})
		return
	}
	text, _ := req.VLMText.(string)
	if strings.TrimSpace(text) == "" {
		s.logger.Warn("Rejected injection: empty text.")
		writeJSON(w, http.StatusBadRequest, ackResponse{Err: "vlm_text empty"})
		return
	}

	s.state.Inject(text)
	s.logger.Info("Model text injected.", zap.Int("len", len(text)))
	writeJSON(w, http.StatusOK, ackResponse{OK: true})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	body := r.Body
	if s.cfg.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("reading body: %w", err)
	}
	return jsonAPI.Unmarshal(data, v)
}

// sequenceOf accepts a JSON number with an integral value.
func sequenceOf(v interface{}) (int, bool) {
	f, ok := v.(float64)
	if !ok || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

func rawString(v interface{}) string {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// unrouted reports 405 for methods the protocol never serves and 404 for
// everything else.
func unrouted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]int{"error": http.StatusMethodNotAllowed})
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]int{"error": http.StatusNotFound})
}

// protocolHeaders sets the CORS and caching headers every response carries
// and answers preflight requests.
func protocolHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "close")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := jsonAPI.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":500}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
