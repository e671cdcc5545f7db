package slack

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// RawEvent is the stored raw record for one Slack message event.
type RawEvent struct {
	EventID       string     `json:"eventId"`
	TeamID        string     `json:"teamId,omitempty"`
	ChannelID     string     `json:"channelId"`
	UserID        string     `json:"userId,omitempty"`
	UserEmail     *string    `json:"userEmail,omitempty"`
	Text          string     `json:"text,omitempty"`
	TS            string     `json:"ts,omitempty"`
	ThreadTS      string     `json:"threadTs,omitempty"`
	Timestamp     *time.Time `json:"timestamp,omitempty"`
	MentionEmails []string   `json:"mentionEmails,omitempty"`
}

// EventTime returns the explicit timestamp or the one encoded in TS
// ("1712345678.000100").
func (e RawEvent) EventTime() (time.Time, bool) {
	if e.Timestamp != nil && !e.Timestamp.IsZero() {
		return e.Timestamp.UTC(), true
	}
	return parseTS(e.TS)
}

func parseTS(ts string) (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}
	secPart, fracPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	var micros int64
	if fracPart != "" {
		if len(fracPart) > 6 {
			fracPart = fracPart[:6]
		}
		fracPart += strings.Repeat("0", 6-len(fracPart))
		micros, err = strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
	}
	return time.Unix(sec, micros*1000).UTC(), true
}

// eventCallback is the Events API envelope delivered to a request URL.
type eventCallback struct {
	Type    string `json:"type"`
	TeamID  string `json:"team_id"`
	EventID string `json:"event_id"`
	Event   struct {
		Type     string `json:"type"`
		Subtype  string `json:"subtype"`
		User     string `json:"user"`
		Text     string `json:"text"`
		Channel  string `json:"channel"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
	} `json:"event"`
}

// ErrNotMessage is returned for callbacks that carry no user message.
var ErrNotMessage = errors.New("slack callback is not a user message")

// RawEventFromCallback converts an Events API message callback into a raw
// event. Bot messages and edits are rejected with ErrNotMessage.
func RawEventFromCallback(body []byte) (RawEvent, error) {
	var cb eventCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return RawEvent{}, err
	}
	if cb.Type != "event_callback" || cb.Event.Type != "message" || cb.Event.Subtype != "" || cb.Event.User == "" {
		return RawEvent{}, ErrNotMessage
	}
	return RawEvent{
		EventID:   cb.EventID,
		TeamID:    cb.TeamID,
		ChannelID: cb.Event.Channel,
		UserID:    cb.Event.User,
		Text:      cb.Event.Text,
		TS:        cb.Event.TS,
		ThreadTS:  cb.Event.ThreadTS,
	}, nil
}
