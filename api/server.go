// Package api implements the thin HTTP transport surface for the Halt,
// Petition, and Audit APIs: a chi router whose handlers parse requests,
// call into ledger/halt/motionqueue/merkle, and serialize their results.
// It holds no deliberation or ledger logic of its own: the Server struct
// holds injected dependencies, and its Router method wires handlers and
// middleware over them.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/archon72/governance/api/auth"
	"github.com/archon72/governance/halt"
	"github.com/archon72/governance/ledger"
	"github.com/archon72/governance/merkle"
	"github.com/archon72/governance/motionqueue"
)

// Server bundles the dependencies every handler is a thin seam over.
type Server struct {
	Halt      *halt.Circuit
	Intake    *motionqueue.Intake
	CoSign    *motionqueue.CoSignDesk
	Petitions motionqueue.PetitionBackend
	Ledger    *ledger.Store
	Merkle    *merkle.Builder
	Auth      *auth.Authenticator
	Clock     func() time.Time
}

func (s *Server) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now().UTC()
}

// Router builds the HTTP handler tree for every endpoint spec section 6
// names.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/halt", func(sr chi.Router) {
		sr.Get("/status", s.handleHaltStatus)
		sr.Group(func(gr chi.Router) {
			if s.Auth != nil {
				gr.Use(s.Auth.Middleware("halt:operate"))
			}
			gr.Post("/trigger", s.handleHaltTrigger)
			gr.Post("/restore", s.handleHaltRestore)
		})
	})

	r.Route("/petitions", func(sr chi.Router) {
		sr.Post("/", s.handleSubmitPetition)
		sr.Post("/{petitionID}/co-sign", s.handleCoSignPetition)
		sr.Get("/{petitionID}/status", s.handlePetitionStatus)
	})

	r.Route("/ledger", func(sr chi.Router) {
		sr.Get("/export", s.handleLedgerExport)
		sr.Get("/proof/{eventID}", s.handleLedgerProof)
		sr.Post("/verify", s.handleLedgerVerify)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, dest any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dest)
}
