package github

import (
	"encoding/json"
	"time"
)

// RawEvent is the stored raw record for one GitHub webhook delivery.
type RawEvent struct {
	// ID is the delivery id (X-GitHub-Delivery) or any id unique per event.
	ID         string     `json:"id"`
	EventType  string     `json:"eventType"`
	ReceivedAt *time.Time `json:"receivedAt,omitempty"`
	Payload    Payload    `json:"payload"`
}

// NewRawEvent wraps a webhook body as delivered with its headers.
func NewRawEvent(eventType, deliveryID string, body []byte, receivedAt time.Time) (RawEvent, error) {
	ev := RawEvent{ID: deliveryID, EventType: eventType, ReceivedAt: &receivedAt}
	if err := json.Unmarshal(body, &ev.Payload); err != nil {
		return RawEvent{}, err
	}
	return ev, nil
}

// Payload holds the subset of webhook fields the transformer reads. Every
// section is optional since each event type carries a different subset.
type Payload struct {
	Action           string            `json:"action,omitempty"`
	Repository       *Repository       `json:"repository,omitempty"`
	Sender           *User             `json:"sender,omitempty"`
	Pusher           *Person           `json:"pusher,omitempty"`
	Ref              string            `json:"ref,omitempty"`
	HeadCommit       *Commit           `json:"head_commit,omitempty"`
	Commits          []Commit          `json:"commits,omitempty"`
	PullRequest      *PullRequest      `json:"pull_request,omitempty"`
	Review           *Review           `json:"review,omitempty"`
	Deployment       *Deployment       `json:"deployment,omitempty"`
	DeploymentStatus *DeploymentStatus `json:"deployment_status,omitempty"`
}

type Repository struct {
	ID       int64  `json:"id"`
	FullName string `json:"full_name"`
}

type User struct {
	ID    int64   `json:"id"`
	Login string  `json:"login"`
	Email *string `json:"email,omitempty"`
}

// Person is the name/email pair used by git metadata.
type Person struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username,omitempty"`
}

type Commit struct {
	ID        string     `json:"id"`
	Message   string     `json:"message"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Author    *Person    `json:"author,omitempty"`
}

type Branch struct {
	Ref string `json:"ref"`
	SHA string `json:"sha"`
}

type PullRequest struct {
	ID        int64      `json:"id"`
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	Body      *string    `json:"body,omitempty"`
	State     string     `json:"state"`
	Merged    bool       `json:"merged"`
	User      *User      `json:"user,omitempty"`
	Head      *Branch    `json:"head,omitempty"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Commits   int        `json:"commits"`
	CreatedAt *time.Time `json:"created_at,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	MergedAt  *time.Time `json:"merged_at,omitempty"`
}

type Review struct {
	ID          int64      `json:"id"`
	State       string     `json:"state"`
	User        *User      `json:"user,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
}

type Deployment struct {
	ID          int64      `json:"id"`
	SHA         string     `json:"sha"`
	Ref         string     `json:"ref"`
	Environment string     `json:"environment"`
	Creator     *User      `json:"creator,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}

type DeploymentStatus struct {
	ID          int64      `json:"id"`
	State       string     `json:"state"`
	Environment string     `json:"environment,omitempty"`
	Creator     *User      `json:"creator,omitempty"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
}
