package model

import "time"

// ChangeType is the kind of reconciliation operation a ChangeRecord proposes.
type ChangeType string

const (
	ChangeCreate ChangeType = "CREATE"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeStatus is the lifecycle state of a ChangeRecord.
type ChangeStatus string

const (
	ChangePending ChangeStatus = "pending"
	ChangeApplied ChangeStatus = "applied"
	ChangeFailed  ChangeStatus = "failed"
	ChangeSkipped ChangeStatus = "skipped"
)

// FieldChange captures one changed field on an UPDATE record.
type FieldChange struct {
	Old any `json:"old"`
	New any `json:"new"`
}

// ChangeRecord is the audit-trailed unit of reconciliation output.
// Invariants: a DELETE always carries ListingID; a CREATE never does;
// records are never deleted, only status-transitioned by the applier.
type ChangeRecord struct {
	ID        string                 `json:"id"`
	SessionID string                 `json:"session_id"`
	Type      ChangeType             `json:"type"`
	ListingID string                 `json:"listing_id,omitempty"`
	Extracted *ExtractedVehicle      `json:"extracted,omitempty"`
	Changes   map[string]FieldChange `json:"changes,omitempty"`
	Status    ChangeStatus           `json:"status"`
	Error     string                 `json:"error,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// SessionStatus is the lifecycle state of an extraction session.
type SessionStatus string

const (
	SessionPending          SessionStatus = "pending"
	SessionApplied          SessionStatus = "applied"
	SessionPartiallyApplied SessionStatus = "partially_applied"
	SessionFailed           SessionStatus = "failed"
	SessionCancelled        SessionStatus = "cancelled"
)

// Session is one reconciliation run: one document for one dealer.
type Session struct {
	ID            string        `json:"id"`
	DealerID      string        `json:"dealer_id"`
	DocumentName  string        `json:"document_name,omitempty"`
	Status        SessionStatus `json:"status"`
	CorrelationID string        `json:"correlation_id,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// ApplyError describes one failed change record in a batch.
type ApplyError struct {
	ChangeID string     `json:"change_id"`
	Type     ChangeType `json:"type"`
	Message  string     `json:"message"`
}

// ApplyResult summarizes one applier batch. Exactly one of the three counts
// buckets every processed record; Errors holds one entry per failed record.
type ApplyResult struct {
	SessionID string        `json:"session_id"`
	Applied   int           `json:"applied"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Errors    []ApplyError  `json:"errors,omitempty"`
	Status    SessionStatus `json:"status"`
}
