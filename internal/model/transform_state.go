package model

import "time"

// TransformState tracks orchestration for a single source.
type TransformState struct {
	Source        Source     `json:"source"`
	LastRunAt     *time.Time `json:"lastRunAt,omitempty"`
	LastSuccessAt *time.Time `json:"lastSuccessAt,omitempty"`
	LastError     string     `json:"lastError,omitempty"`
	IsRunning     bool       `json:"isRunning"`

	// RunStartedAt is the lease start of the in-progress run.
	RunStartedAt *time.Time `json:"runStartedAt,omitempty"`

	// Counters of the last finished run.
	LastProcessed int `json:"lastProcessed"`
	LastCreated   int `json:"lastCreated"`
	LastSkipped   int `json:"lastSkipped"`
	LastErrors    int `json:"lastErrors"`
}

// RawRecord is an unprocessed payload captured from a source, stored until
// the matching transformer turns it into activities.
type RawRecord struct {
	Source     Source    `json:"source" db:"source"`
	Ref        string    `json:"ref" db:"ref"`
	OrgID      string    `json:"orgId" db:"org_id"`
	Payload    []byte    `json:"payload" db:"payload"`
	ReceivedAt time.Time `json:"receivedAt" db:"received_at"`
}
