package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/archon72/governance/motionqueue"
)

type submitPetitionRequest struct {
	Type        string `json:"type"`
	Text        string `json:"text"`
	SubmitterID string `json:"submitter_id"`
	Realm       string `json:"realm"`
}

func (s *Server) handleSubmitPetition(w http.ResponseWriter, r *http.Request) {
	var req submitPetitionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	p, err := s.Intake.Submit(r.Context(), motionqueue.SubmitRequest{
		Type:        motionqueue.PetitionType(req.Type),
		Text:        req.Text,
		SubmitterID: req.SubmitterID,
		Realm:       req.Realm,
	})
	if err != nil {
		writePetitionIntakeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"petition_id":  p.PetitionID,
		"status":       p.State,
		"content_hash": p.ContentHash,
		"submitted_at": p.CreatedAt,
	})
}

type coSignRequest struct {
	SignerID  string `json:"signer_id"`
	Statement string `json:"statement"`
}

func (s *Server) handleCoSignPetition(w http.ResponseWriter, r *http.Request) {
	petitionID := chi.URLParam(r, "petitionID")
	var req coSignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	count, duplicate, err := s.CoSign.CoSign(r.Context(), petitionID, req.SignerID)
	if err != nil {
		writePetitionIntakeError(w, err)
		return
	}
	if duplicate {
		writeError(w, http.StatusConflict, "signer already co-signed this petition")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"petition_id":     petitionID,
		"co_signer_count": count,
	})
}

func (s *Server) handlePetitionStatus(w http.ResponseWriter, r *http.Request) {
	petitionID := chi.URLParam(r, "petitionID")
	p, ok, err := s.Petitions.Get(r.Context(), petitionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "petition not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          p.State,
		"co_signer_count": p.CoSignerCount,
	})
}

// writePetitionIntakeError maps motionqueue's gate errors onto the status
// codes spec section 6 assigns them.
func writePetitionIntakeError(w http.ResponseWriter, err error) {
	var retryable *motionqueue.RetryableError
	if errors.As(err, &retryable) {
		w.Header().Set("Retry-After", strconv.FormatInt(retryable.RetryAfter, 10))
		writeError(w, http.StatusTooManyRequests, retryable.Error())
		return
	}
	switch {
	case errors.Is(err, motionqueue.ErrSchemaInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, motionqueue.ErrHalted):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, motionqueue.ErrDuplicateContent):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

