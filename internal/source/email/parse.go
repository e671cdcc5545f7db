package email

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message/mail"
)

const snippetLength = 200

// ParseEML reads an RFC 5322 message (an .eml file) into a raw message.
func ParseEML(r io.Reader) (RawMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return RawMessage{}, fmt.Errorf("reading message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	var msg RawMessage

	if msg.MessageID, err = h.MessageID(); err != nil {
		return RawMessage{}, fmt.Errorf("reading Message-ID: %w", err)
	}
	if msg.Subject, err = h.Subject(); err != nil {
		return RawMessage{}, fmt.Errorf("reading Subject: %w", err)
	}
	if date, err := h.Date(); err == nil {
		msg.Date = date.UTC()
	}

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
	}
	msg.To = addresses(h, "To")
	msg.Cc = addresses(h, "Cc")

	if ids, err := h.MsgIDList("References"); err == nil && len(ids) > 0 {
		msg.ThreadID = ids[0]
	} else if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		msg.ThreadID = ids[0]
	}

	msg.Snippet = textSnippet(mr)
	return msg, nil
}

func addresses(h mail.Header, key string) []string {
	list, err := h.AddressList(key)
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Address)
	}
	return out
}

// textSnippet returns the start of the first text/plain part.
func textSnippet(mr *mail.Reader) string {
	for {
		part, err := mr.NextPart()
		if err != nil {
			return ""
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		if !strings.HasPrefix(contentType, "text/plain") {
			continue
		}

		body, err := io.ReadAll(io.LimitReader(part.Body, 4*snippetLength))
		if err != nil {
			return ""
		}
		text := strings.Join(strings.Fields(string(body)), " ")
		if r := []rune(text); len(r) > snippetLength {
			text = string(r[:snippetLength])
		}
		return text
	}
}
