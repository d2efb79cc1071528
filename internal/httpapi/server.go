package httpapi

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"fintrack/internal/core"
	"fintrack/internal/log"
	"fintrack/internal/services"
	"fintrack/internal/state"
	"fintrack/internal/storage"
)

// Server is the local status API: it exposes the state snapshot, the
// balance summary and the sync queue over HTTP, and accepts record
// saves and deletes.
type Server struct {
	http.Server

	store     *state.Store
	ledger    *services.LedgerService
	summary   *services.SummaryService
	processor *services.SyncProcessor
	logger    *log.Logger
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(
	addr string,
	store *state.Store,
	ledger *services.LedgerService,
	summary *services.SummaryService,
	processor *services.SyncProcessor,
	logger *log.Logger,
) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}

	mux := http.NewServeMux()
	s := &Server{
		Server: http.Server{
			Addr:    addr,
			Handler: mux,
		},
		store:     store,
		ledger:    ledger,
		summary:   summary,
		processor: processor,
		logger:    logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/state", s.withLogging(s.handleState))
	mux.HandleFunc("GET /api/summary", s.withLogging(s.handleSummary))
	mux.HandleFunc("GET /api/sync/status", s.withLogging(s.handleSyncStatus))
	mux.HandleFunc("POST /api/sync/retry", s.withLogging(s.handleSyncRetry))
	mux.HandleFunc("POST /api/expenses", s.withLogging(s.handleCreateExpense))
	mux.HandleFunc("POST /api/income", s.withLogging(s.handleCreateIncome))
	mux.HandleFunc("DELETE /api/{kind}/{localID}", s.withLogging(s.handleDelete))

	return s
}

// withLogging stamps each request with a request id and logs start and
// completion with duration and status.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()

		ctx := r.Context()
		r = r.WithContext(ctx)

		s.logger.InfoContext(ctx, "Request started",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.logger.InfoContext(ctx, "Request completed",
			log.FieldRequestID, requestID,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path,
			log.FieldStatusCode, rw.statusCode,
			log.FieldDuration, time.Since(start).Milliseconds(),
			log.FieldSuccess, rw.statusCode < 400)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, s.store.Snapshot(), "")
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, s.summary.Summary(r.Context()), "")
}

// syncStatus is the body of GET /api/sync/status.
type syncStatus struct {
	Running            bool               `json:"running"`
	Queue              storage.QueueStats `json:"queue"`
	ExpensesSyncedAt   time.Time          `json:"expenses_synced_at"`
	IncomeSyncedAt     time.Time          `json:"income_synced_at"`
	PendingSubmissions int                `json:"pending_submissions"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := s.processor.Stats(r.Context())
	if err != nil {
		resp, status := Translate(r.Context(), err)
		writeJSON(w, status, resp)
		return
	}

	WriteSuccess(w, syncStatus{
		Running:            s.processor.IsRunning(),
		Queue:              stats,
		ExpensesSyncedAt:   s.store.Expenses.LastSyncedAt(),
		IncomeSyncedAt:     s.store.Income.LastSyncedAt(),
		PendingSubmissions: len(s.store.Expenses.Queue()),
	}, "")
}

func (s *Server) handleSyncRetry(w http.ResponseWriter, r *http.Request) {
	retried, err := s.processor.RetryFailed(r.Context())
	if err != nil {
		resp, status := Translate(r.Context(), err)
		writeJSON(w, status, resp)
		return
	}
	WriteSuccess(w, map[string]int64{"retried": retried}, "Failed sync items queued for retry")
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	var expense core.Expense
	if !s.decodeBody(w, r, &expense) {
		return
	}

	saved, err := s.ledger.SaveExpense(r.Context(), expense)
	if err != nil {
		resp, status := Translate(r.Context(), err)
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusCreated, NewSuccessResponse(saved, "Expense saved locally"))
}

func (s *Server) handleCreateIncome(w http.ResponseWriter, r *http.Request) {
	var income core.Income
	if !s.decodeBody(w, r, &income) {
		return
	}

	saved, err := s.ledger.SaveIncome(r.Context(), income)
	if err != nil {
		resp, status := Translate(r.Context(), err)
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusCreated, NewSuccessResponse(saved, "Income saved locally"))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var kind core.Kind
	switch r.PathValue("kind") {
	case "expenses":
		kind = core.KindExpense
	case "income":
		kind = core.KindIncome
	default:
		WriteError(w, NotFoundResource, "Unknown record kind", nil)
		return
	}

	localID := r.PathValue("localID")
	if err := s.ledger.Delete(r.Context(), kind, localID); err != nil {
		resp, status := Translate(r.Context(), err)
		writeJSON(w, status, resp)
		return
	}
	WriteSuccess(w, map[string]string{"local_id": localID}, "Record deleted locally")
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		WriteError(w, ValidationInvalidFormat, "Unable to read request body", nil)
		return false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		WriteError(w, ValidationInvalidFormat, "Request body is not valid JSON", nil)
		return false
	}
	return true
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}
