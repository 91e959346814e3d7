// Package api provides the HTTP server and handlers.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sonpython/sms-api/internal/auth"
	"github.com/sonpython/sms-api/internal/logging"
	"github.com/sonpython/sms-api/internal/metrics"
	"github.com/sonpython/sms-api/internal/protocol"
	"github.com/sonpython/sms-api/internal/send"
	"github.com/sonpython/sms-api/internal/spool"
	"github.com/sonpython/sms-api/internal/watch"
)

// The gateway sits behind the admin UI's dev server and reverse proxies,
// so cross-origin upgrades are allowed; auth happens via the token.
var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// Server is the HTTP server.
type Server struct {
	auth         *auth.Auth
	reader       *spool.Reader
	gateway      *send.Gateway
	pollInterval time.Duration
}

// NewServer creates a new server. A zero pollInterval leaves watch
// sessions on their default.
func NewServer(authHandler *auth.Auth, reader *spool.Reader, gateway *send.Gateway, pollInterval time.Duration) *Server {
	return &Server{
		auth:         authHandler,
		reader:       reader,
		gateway:      gateway,
		pollInterval: pollInterval,
	}
}

// Handler returns the HTTP handler with logging and metrics middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Public endpoints (no token required)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /admin/login", s.auth.HandleLogin)
	mux.HandleFunc("POST /send-sms", s.handleSendSMS)

	// WebSocket endpoint authenticates via query parameter: the token has
	// to travel with the upgrade request, before bearer headers apply.
	mux.HandleFunc("GET /admin/ws", s.handleWatch)

	// Protected endpoints
	protected := http.NewServeMux()
	protected.HandleFunc("GET /admin/api/sms/{folder}", s.handleList)
	protected.HandleFunc("GET /admin/api/sms/{folder}/{filename}", s.handleReadFile)
	protected.HandleFunc("POST /admin/api/send-test-sms", s.handleSendTest)
	mux.Handle("/admin/api/", s.auth.Middleware(protected))

	return metrics.Middleware(logging.Middleware(mux))
}

// ─── Health ─────────────────────────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// ─── Spool listing & reads ──────────────────────────────────────────────────

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	folder, err := spool.ParseFolder(r.PathValue("folder"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "INVALID_FOLDER")
		return
	}

	q := r.URL.Query()
	opts := spool.ListOptions{
		Search:    q.Get("search"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
		Page:      intParam(q.Get("page")),
		PerPage:   intParam(q.Get("per_page")),
	}

	resp, err := s.reader.List(folder, opts)
	if err != nil {
		logging.Error("folder listing failed", zap.String("folder", string(folder)), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "LIST_FAILED")
		return
	}

	metrics.RecordSpoolList(string(folder))
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	folder, err := spool.ParseFolder(r.PathValue("folder"))
	if err != nil {
		s.sendError(w, http.StatusBadRequest, "INVALID_FOLDER")
		return
	}

	rec, err := s.reader.Read(folder, r.PathValue("filename"))
	if err != nil {
		s.sendError(w, http.StatusNotFound, "FILE_NOT_FOUND")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rec)
}

// ─── Sending ────────────────────────────────────────────────────────────────

func (s *Server) handleSendTest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendError(w, http.StatusUnprocessableEntity, "MISSING_FIELD")
		return
	}
	if !r.PostForm.Has("phone") || !r.PostForm.Has("message") {
		s.sendError(w, http.StatusUnprocessableEntity, "MISSING_FIELD")
		return
	}
	phone := r.PostFormValue("phone")
	message := r.PostFormValue("message")

	file, err := s.gateway.CreateOutgoing(phone, message)
	if err != nil {
		logging.Error("test sms write failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "SEND_FAILED")
		return
	}

	metrics.RecordSMSCreated("admin")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.SendResponse{Status: "OK", File: file})
}

// handleSendSMS is the public signed endpoint used by external systems.
// Form field names follow the upstream integration contract: sdt is the
// phone number, noidungtinnhan the message body.
func (s *Server) handleSendSMS(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		s.sendError(w, http.StatusUnprocessableEntity, "MISSING_FIELD")
		return
	}
	// Empty-but-submitted values proceed to validation; only absent
	// fields are a validation error.
	if !r.PostForm.Has("sdt") || !r.PostForm.Has("noidungtinnhan") || !r.PostForm.Has("hash") {
		s.sendError(w, http.StatusUnprocessableEntity, "MISSING_FIELD")
		return
	}
	phone := r.PostFormValue("sdt")
	message := r.PostFormValue("noidungtinnhan")
	hash := r.PostFormValue("hash")

	normalized, err := s.gateway.ValidatePhone(phone)
	if err != nil {
		metrics.RecordSendRejection("phone_format")
		s.sendError(w, http.StatusBadRequest, "INVALID_VN_PHONE_FORMAT")
		return
	}

	// The signature covers the phone exactly as submitted.
	if err := s.gateway.VerifyHash(phone, message, hash); err != nil {
		metrics.RecordSendRejection("hash")
		logging.Warn("send-sms rejected: bad signature", zap.String("remote_addr", r.RemoteAddr))
		s.sendError(w, http.StatusForbidden, "INVALID_HASH")
		return
	}

	file, err := s.gateway.CreateOutgoing(normalized, message)
	if err != nil {
		logging.Error("sms write failed", zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "SEND_FAILED")
		return
	}

	metrics.RecordSMSCreated("public")
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(protocol.SendResponse{Status: "OK", File: file})
}

// ─── Watch WebSocket ────────────────────────────────────────────────────────

func (s *Server) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		return
	}

	if _, err := s.auth.Verify(r.URL.Query().Get("token")); err != nil {
		msg := websocket.FormatCloseMessage(watch.CloseInvalidToken, "INVALID_TOKEN")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.Close()
		return
	}

	watch.NewSession(s.reader, conn, s.pollInterval).Run()
}

// ─── Helpers ────────────────────────────────────────────────────────────────

func (s *Server) sendError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(protocol.ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func intParam(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}
