package email

import "time"

// RawMessage is the stored raw record for one email.
type RawMessage struct {
	MessageID string    `json:"messageId"`
	ThreadID  string    `json:"threadId,omitempty"`
	From      string    `json:"from"`
	To        []string  `json:"to,omitempty"`
	Cc        []string  `json:"cc,omitempty"`
	Subject   string    `json:"subject"`
	Date      time.Time `json:"date"`
	Snippet   string    `json:"snippet,omitempty"`
}

// Receivers returns the To and Cc addresses.
func (m RawMessage) Receivers() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc))
	out = append(out, m.To...)
	return append(out, m.Cc...)
}
