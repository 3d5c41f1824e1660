// Package rpcserver exposes the LockManager façade over HTTP using chi:
// four RPC-style endpoints (RegisterTransaction, LockShared, LockExclusive,
// Unlock) with OK/CANCELLED status semantics, transport-agnostically. Auth
// is a single shared-secret header checked by middleware.
package rpcserver

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/dmlab-tud/lockvault/manager"
)

// Server adapts a *manager.Manager onto an HTTP mux.
type Server struct {
	mgr    *manager.Manager
	secret string
}

// New builds a Server. An empty secret disables authentication.
func New(mgr *manager.Manager, secret string) *Server {
	return &Server{mgr: mgr, secret: secret}
}

// Router returns the chi router implementing the RPC surface, ready to be
// mounted directly or under a prefix via http.StripPrefix.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.authMiddleware)

	r.Post("/RegisterTransaction", s.handleRegisterTransaction)
	r.Post("/LockShared", s.handleLock(false))
	r.Post("/LockExclusive", s.handleLock(true))
	r.Post("/Unlock", s.handleUnlock)

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret == "" {
			next.ServeHTTP(w, r)
			return
		}
		if r.Header.Get("X-LockVault-Secret") != s.secret {
			writeError(w, http.StatusUnauthorized, "missing or invalid secret")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type registerRequest struct {
	TransactionID uint64 `json:"transaction_id"`
	LockBudget    uint32 `json:"lock_budget"`
}

func (s *Server) handleRegisterTransaction(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	ok, err := s.mgr.Register(req.TransactionID, req.LockBudget)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeStatus(w, statusCancelled, map[string]any{})
		return
	}
	writeStatus(w, statusOK, map[string]any{})
}

type lockRequest struct {
	TransactionID uint64 `json:"transaction_id"`
	RowID         uint64 `json:"row_id"`
}

func (s *Server) handleLock(exclusive bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req lockRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "malformed request body")
			return
		}

		var signature string
		var ok bool
		var err error
		if exclusive {
			signature, ok, err = s.mgr.LockExclusive(req.TransactionID, req.RowID)
		} else {
			signature, ok, err = s.mgr.LockShared(req.TransactionID, req.RowID)
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if !ok {
			writeStatus(w, statusCancelled, map[string]any{"signature": signature})
			return
		}
		writeStatus(w, statusOK, map[string]any{"signature": signature})
	}
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	s.mgr.Unlock(req.TransactionID, req.RowID)
	writeStatus(w, statusOK, map[string]any{})
}

// status is a gRPC-style OK/CANCELLED vocabulary surfaced over HTTP as a
// status field plus an appropriate status code, since chi gives us routing
// rather than gRPC's own status machinery.
type status string

const (
	statusOK        status = "OK"
	statusCancelled status = "CANCELLED"
)

func writeStatus(w http.ResponseWriter, st status, body map[string]any) {
	code := http.StatusOK
	if st == statusCancelled {
		code = http.StatusConflict
	}
	body["status"] = st
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode rpc response")
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		log.Error().Err(err).Msg("failed to encode error response")
	}
}
