package email

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/nhle/orgpulse/internal/model"
	"github.com/nhle/orgpulse/internal/source"
)

// IMAPClient wraps go-imap v2 for connecting to and querying IMAP servers.
type IMAPClient struct {
	host     string
	port     int
	username string
	password string
	tls      bool
}

// NewIMAPClient creates a new IMAP client configuration.
func NewIMAPClient(host string, port int, username, password string, tls bool) *IMAPClient {
	return &IMAPClient{
		host:     host,
		port:     port,
		username: username,
		password: password,
		tls:      tls,
	}
}

// Connect establishes a connection to the IMAP server, authenticates,
// and returns the connected client. The caller is responsible for
// calling Logout/Close on the returned client.
func (c *IMAPClient) Connect(_ context.Context) (*imapclient.Client, error) {
	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))

	var client *imapclient.Client
	var err error

	if c.tls {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialStartTLS(addr, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to IMAP %s: %w", addr, err)
	}

	if err := client.Login(c.username, c.password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return nil, &source.AuthError{
			Source:  model.SourceEmail,
			Message: fmt.Sprintf("authentication failed for %s: %v", c.username, err),
		}
	}

	return client, nil
}

// FetchSince selects mailbox and returns the envelopes of messages received
// on or after since, oldest first.
func (c *IMAPClient) FetchSince(ctx context.Context, mailbox string, since time.Time) ([]RawMessage, error) {
	client, err := c.Connect(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Logout().Wait() }()

	if _, err := client.Select(mailbox, nil).Wait(); err != nil {
		return nil, fmt.Errorf("selecting %s: %w", mailbox, err)
	}

	searchData, err := client.UIDSearch(&imap.SearchCriteria{Since: since}, nil).Wait()
	if err != nil {
		return nil, fmt.Errorf("searching messages: %w", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil, nil
	}

	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		Envelope: true,
		UID:      true,
	})
	defer fetchCmd.Close()

	var messages []RawMessage
	for {
		if err := ctx.Err(); err != nil {
			return messages, err
		}
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			continue
		}
		if raw, ok := messageFromBuffer(buf); ok {
			messages = append(messages, raw)
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return messages, fmt.Errorf("fetching envelopes: %w", err)
	}

	return messages, nil
}

// messageFromBuffer extracts a RawMessage from a FetchMessageBuffer.
func messageFromBuffer(buf *imapclient.FetchMessageBuffer) (RawMessage, bool) {
	if buf.Envelope == nil || buf.Envelope.MessageID == "" {
		return RawMessage{}, false
	}

	env := buf.Envelope
	msg := RawMessage{
		MessageID: env.MessageID,
		Subject:   env.Subject,
		Date:      env.Date.UTC(),
	}
	if len(env.From) > 0 {
		msg.From = env.From[0].Addr()
	}
	for _, to := range env.To {
		msg.To = append(msg.To, to.Addr())
	}
	for _, cc := range env.Cc {
		msg.Cc = append(msg.Cc, cc.Addr())
	}
	return msg, true
}
