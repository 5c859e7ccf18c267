package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/archon72/governance/merkle"
)

const ledgerExportPageSize = 500

func (s *Server) handleLedgerExport(w http.ResponseWriter, r *http.Request) {
	since := int64(0)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an integer sequence number")
			return
		}
		since = parsed
	}

	events, err := s.Ledger.ReadRange(r.Context(), since+1, since+ledgerExportPageSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	var nextSince *int64
	if len(events) == ledgerExportPageSize {
		last := events[len(events)-1].Sequence
		nextSince = &last
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"events":     events,
		"next_since": nextSince,
	})
}

func (s *Server) handleLedgerProof(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventID")
	proof, err := s.Merkle.ProofOfInclusion(r.Context(), eventID)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"event_id":     eventID,
		"epoch_id":     proof.EpochID,
		"root":         proof.Root,
		"leaf_index":   proof.LeafIndex,
		"auth_path":    proof.AuthPath,
		"path_is_left": proof.PathIsLeft,
	})
}

type verifyProofRequest struct {
	Algorithm  string   `json:"algorithm"`
	EventHash  string   `json:"event_hash"`
	Path       [][]byte `json:"path"`
	PathIsLeft []bool   `json:"path_is_left"`
	EpochID    int64    `json:"epoch_id"`
	LeafIndex  int      `json:"leaf_index"`
	Root       string   `json:"root"`
}

func (s *Server) handleLedgerVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyProofRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	algorithm := merkle.Algorithm(req.Algorithm)
	if algorithm == "" {
		algorithm = merkle.AlgorithmBLAKE3
	}

	proof := merkle.Proof{
		EpochID:    req.EpochID,
		Root:       req.Root,
		LeafIndex:  req.LeafIndex,
		AuthPath:   req.Path,
		PathIsLeft: req.PathIsLeft,
	}

	verified, err := merkle.VerifyEventProof(algorithm, req.EventHash, proof)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"verified": verified})
}
