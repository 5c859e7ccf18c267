package api

import (
	"errors"
	"net/http"

	"github.com/archon72/governance/api/auth"
	"github.com/archon72/governance/halt"
)

type haltTriggerRequest struct {
	Reason     string `json:"reason"`
	OperatorID string `json:"operator_id"`
	Severity   string `json:"severity"`
}

func (s *Server) handleHaltTrigger(w http.ResponseWriter, r *http.Request) {
	var req haltTriggerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	start := s.now()
	haltID, err := s.Halt.Trigger(r.Context(), req.Reason, req.OperatorID, req.Severity)
	if err != nil {
		switch {
		case errors.Is(err, halt.ErrReasonRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, halt.ErrAlreadyHalted):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	triggeredAt := s.now()

	writeJSON(w, http.StatusOK, map[string]any{
		"halt_id":      haltID,
		"triggered_at": triggeredAt,
		// tasks_halted is not tracked by the halt circuit itself (no
		// component currently reports an in-flight task count to it);
		// callers needing a live count should cross-reference jobqueue.
		"tasks_halted":  0,
		"completion_ms": triggeredAt.Sub(start).Milliseconds(),
	})
}

func (s *Server) handleHaltStatus(w http.ResponseWriter, r *http.Request) {
	state, err := s.Halt.Status(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type haltRestoreRequest struct {
	CeremonyID  string `json:"ceremony_id"`
	ClearReason string `json:"clear_reason"`
	OperatorID  string `json:"operator_id"`
}

func (s *Server) handleHaltRestore(w http.ResponseWriter, r *http.Request) {
	var req haltRestoreRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	operatorID := req.OperatorID
	if s.Auth != nil {
		if id, ok := auth.OperatorID(r.Context()); ok {
			operatorID = id
		}
	}

	err := s.Halt.Restore(r.Context(), req.CeremonyID, req.ClearReason, operatorID)
	if err != nil {
		switch {
		case errors.Is(err, halt.ErrCeremonyRequired):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, halt.ErrNotHalted):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
