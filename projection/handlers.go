package projection

import (
	"encoding/json"
	"fmt"

	"context"

	"github.com/archon72/governance/ledger"
)

// The five reference projections name the read models spec section 4.8
// requires at launch. Each handler derives its row from the event payload
// and, for updates, the row already stored; every handler is registered
// for schema_version "1" only.

// PetitionIndexRow is the petition_index projection's row shape: current
// lifecycle status and co-signer count for a petition, keyed by petition_id.
type PetitionIndexRow struct {
	PetitionID        string `json:"petition_id"`
	SubmitterID       string `json:"submitter_id"`
	Status            string `json:"status"`
	ContentHash       string `json:"content_hash"`
	CoSignerCount     int    `json:"co_signer_count"`
	LastEventSequence int64  `json:"last_event_sequence"`
	LastEventHash     string `json:"last_event_hash"`
}

// RegisterPetitionIndexHandlers wires the petition_index projection's
// event handlers into p.
func RegisterPetitionIndexHandlers(p *Projector) {
	const table = "petition_index"

	p.Register("petition.received.committed", "1", func(_ context.Context, tx DerivedTx, ev ledger.Event) error {
		var payload struct {
			PetitionID  string `json:"petition_id"`
			SubmitterID string `json:"submitter_id"`
			ContentHash string `json:"content_hash"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("petition_index: decode petition.received.committed: %w", err)
		}
		row := PetitionIndexRow{
			PetitionID:        payload.PetitionID,
			SubmitterID:       payload.SubmitterID,
			Status:            "received",
			ContentHash:       payload.ContentHash,
			LastEventSequence: ev.Sequence,
			LastEventHash:     ev.ContentHash,
		}
		return tx.(KVTx).Put(table, row.PetitionID, row)
	})

	p.Register("petition.cosigned.committed", "1", func(_ context.Context, tx DerivedTx, ev ledger.Event) error {
		var payload struct {
			PetitionID string `json:"petition_id"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("petition_index: decode petition.cosigned.committed: %w", err)
		}
		var row PetitionIndexRow
		kv := tx.(KVTx)
		found, err := kv.Get(table, payload.PetitionID, &row)
		if err != nil {
			return err
		}
		if !found {
			row = PetitionIndexRow{PetitionID: payload.PetitionID}
		}
		row.CoSignerCount++
		row.LastEventSequence = ev.Sequence
		row.LastEventHash = ev.ContentHash
		return kv.Put(table, row.PetitionID, row)
	})

	p.Register("petition.escalated.committed", "1", func(_ context.Context, tx DerivedTx, ev ledger.Event) error {
		var payload struct {
			PetitionID string `json:"petition_id"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("petition_index: decode petition.escalated.committed: %w", err)
		}
		kv := tx.(KVTx)
		var row PetitionIndexRow
		if _, err := kv.Get(table, payload.PetitionID, &row); err != nil {
			return err
		}
		row.PetitionID = payload.PetitionID
		row.Status = "escalated"
		row.LastEventSequence = ev.Sequence
		row.LastEventHash = ev.ContentHash
		return kv.Put(table, row.PetitionID, row)
	})
}

// ActorRegistryRow is the actor_registry projection's row shape: each known
// agent's standing and rank, keyed by agent_id.
type ActorRegistryRow struct {
	AgentID           string `json:"agent_id"`
	Rank              string `json:"rank"`
	Standing          string `json:"standing"`
	LastEventSequence int64  `json:"last_event_sequence"`
	LastEventHash     string `json:"last_event_hash"`
}

// RegisterActorRegistryHandlers wires the actor_registry projection's event
// handlers into p.
func RegisterActorRegistryHandlers(p *Projector) {
	const table = "actor_registry"

	p.Register("actor.registered.committed", "1", func(_ context.Context, tx DerivedTx, ev ledger.Event) error {
		var payload struct {
			AgentID string `json:"agent_id"`
			Rank    string `json:"rank"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("actor_registry: decode actor.registered.committed: %w", err)
		}
		row := ActorRegistryRow{
			AgentID:           payload.AgentID,
			Rank:              payload.Rank,
			Standing:          "active",
			LastEventSequence: ev.Sequence,
			LastEventHash:     ev.ContentHash,
		}
		return tx.(KVTx).Put(table, row.AgentID, row)
	})

	p.Register("actor.standing_changed.committed", "1", func(_ context.Context, tx DerivedTx, ev ledger.Event) error {
		var payload struct {
			AgentID  string `json:"agent_id"`
			Standing string `json:"standing"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("actor_registry: decode actor.standing_changed.committed: %w", err)
		}
		kv := tx.(KVTx)
		var row ActorRegistryRow
		if _, err := kv.Get(table, payload.AgentID, &row); err != nil {
			return err
		}
		row.AgentID = payload.AgentID
		row.Standing = payload.Standing
		row.LastEventSequence = ev.Sequence
		row.LastEventHash = ev.ContentHash
		return kv.Put(table, row.AgentID, row)
	})
}

// TaskStateRow is the task_states projection's row shape: a durable job
// queue job's last-known lifecycle status, keyed by job_id.
type TaskStateRow struct {
	JobID             string `json:"job_id"`
	JobType           string `json:"job_type"`
	Status            string `json:"status"`
	LastEventSequence int64  `json:"last_event_sequence"`
	LastEventHash     string `json:"last_event_hash"`
}

// RegisterTaskStatesHandlers wires the task_states projection's event
// handlers into p.
func RegisterTaskStatesHandlers(p *Projector) {
	const table = "task_states"

	apply := func(status string) HandlerFunc {
		return func(_ context.Context, tx DerivedTx, ev ledger.Event) error {
			var payload struct {
				JobID   string `json:"job_id"`
				JobType string `json:"job_type"`
			}
			if err := json.Unmarshal(ev.Payload, &payload); err != nil {
				return fmt.Errorf("task_states: decode %s: %w", ev.EventType, err)
			}
			row := TaskStateRow{
				JobID:             payload.JobID,
				JobType:           payload.JobType,
				Status:            status,
				LastEventSequence: ev.Sequence,
				LastEventHash:     ev.ContentHash,
			}
			return tx.(KVTx).Put(table, row.JobID, row)
		}
	}

	p.Register("task.scheduled.committed", "1", apply("pending"))
	p.Register("task.completed.committed", "1", apply("completed"))
	p.Register("task.dead_lettered.committed", "1", apply("failed"))
}

// PanelRegistryRow is the panel_registry projection's row shape: a
// Conclave panel's current membership roster, keyed by session_id.
type PanelRegistryRow struct {
	SessionID         string   `json:"session_id"`
	MemberIDs         []string `json:"member_ids"`
	Status            string   `json:"status"`
	LastEventSequence int64    `json:"last_event_sequence"`
	LastEventHash     string   `json:"last_event_hash"`
}

// RegisterPanelRegistryHandlers wires the panel_registry projection's event
// handlers into p.
func RegisterPanelRegistryHandlers(p *Projector) {
	const table = "panel_registry"

	p.Register("conclave.session.convened.committed", "1", func(_ context.Context, tx DerivedTx, ev ledger.Event) error {
		var payload struct {
			SessionID string   `json:"session_id"`
			MemberIDs []string `json:"member_ids"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("panel_registry: decode conclave.session.convened.committed: %w", err)
		}
		row := PanelRegistryRow{
			SessionID:         payload.SessionID,
			MemberIDs:         payload.MemberIDs,
			Status:            "call_to_order",
			LastEventSequence: ev.Sequence,
			LastEventHash:     ev.ContentHash,
		}
		return tx.(KVTx).Put(table, row.SessionID, row)
	})

	p.Register("conclave.session.adjourned.committed", "1", func(_ context.Context, tx DerivedTx, ev ledger.Event) error {
		var payload struct {
			SessionID string `json:"session_id"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("panel_registry: decode conclave.session.adjourned.committed: %w", err)
		}
		kv := tx.(KVTx)
		var row PanelRegistryRow
		if _, err := kv.Get(table, payload.SessionID, &row); err != nil {
			return err
		}
		row.SessionID = payload.SessionID
		row.Status = "adjourned"
		row.LastEventSequence = ev.Sequence
		row.LastEventHash = ev.ContentHash
		return kv.Put(table, row.SessionID, row)
	})
}

// LegitimacyStateRow is the legitimacy_states projection's row shape: a
// petition's Three-Fates adoption-legitimacy adjudication outcome, keyed by
// petition_id.
type LegitimacyStateRow struct {
	PetitionID        string `json:"petition_id"`
	Verdict           string `json:"verdict"`
	RoundCount        int    `json:"round_count"`
	LastEventSequence int64  `json:"last_event_sequence"`
	LastEventHash     string `json:"last_event_hash"`
}

// RegisterLegitimacyStatesHandlers wires the legitimacy_states projection's
// event handlers into p.
func RegisterLegitimacyStatesHandlers(p *Projector) {
	const table = "legitimacy_states"

	p.Register("fates.verdict.committed", "1", func(_ context.Context, tx DerivedTx, ev ledger.Event) error {
		var payload struct {
			PetitionID string `json:"petition_id"`
			Verdict    string `json:"verdict"`
			RoundCount int    `json:"round_count"`
		}
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			return fmt.Errorf("legitimacy_states: decode fates.verdict.committed: %w", err)
		}
		row := LegitimacyStateRow{
			PetitionID:        payload.PetitionID,
			Verdict:           payload.Verdict,
			RoundCount:        payload.RoundCount,
			LastEventSequence: ev.Sequence,
			LastEventHash:     ev.ContentHash,
		}
		return tx.(KVTx).Put(table, row.PetitionID, row)
	})
}

// RegisterAllReferenceHandlers wires every initial projection's handlers
// onto its own Projector. Callers typically construct one Projector per
// projection name sharing a single Backend and EventSource.
func RegisterAllReferenceHandlers(petitionIndex, actorRegistry, taskStates, panelRegistry, legitimacyStates *Projector) {
	RegisterPetitionIndexHandlers(petitionIndex)
	RegisterActorRegistryHandlers(actorRegistry)
	RegisterTaskStatesHandlers(taskStates)
	RegisterPanelRegistryHandlers(panelRegistry)
	RegisterLegitimacyStatesHandlers(legitimacyStates)
}
