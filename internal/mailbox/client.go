// Package mailbox reads unread invoice emails over IMAP.
package mailbox

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/cuongbtq/invoice-verifier/internal/domain"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// uidPrefix marks a message id synthesized from the IMAP UID when the
// message carries no Message-ID header
const uidPrefix = "uid:"

// Config holds IMAP connection settings
type Config struct {
	Host          string
	Port          int
	User          string
	Password      string
	Mailbox       string
	SubjectFilter string
	DialTimeout   time.Duration
}

// Client opens one IMAP session per call
type Client struct {
	config Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a mailbox client
func New(config Config, logger *slog.Logger) *Client {
	if config.Mailbox == "" {
		config.Mailbox = "INBOX"
	}
	return &Client{
		config: config,
		logger: logger.With(slog.String("component", "mailbox")),
		now:    time.Now,
	}
}

// FetchUnreadInvoiceEmails returns unread messages received within the
// lookback window whose subject matches the filter. Bodies are fetched with
// BODY.PEEK so nothing is marked read.
func (c *Client) FetchUnreadInvoiceEmails(ctx context.Context, lookbackDays int) ([]domain.Email, error) {
	var emails []domain.Email

	err := c.session(ctx, func(imc *client.Client) error {
		criteria := imap.NewSearchCriteria()
		criteria.WithoutFlags = []string{imap.SeenFlag}
		criteria.Since = c.now().AddDate(0, 0, -lookbackDays)
		if c.config.SubjectFilter != "" {
			criteria.Header.Add("Subject", c.config.SubjectFilter)
		}

		uids, err := imc.UidSearch(criteria)
		if err != nil {
			return fmt.Errorf("search unread messages: %w", err)
		}
		c.logger.Info("Unread invoice emails found", slog.Int("count", len(uids)))
		if len(uids) == 0 {
			return nil
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(uids...)
		section := &imap.BodySectionName{Peek: true}
		items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

		messages := make(chan *imap.Message, 10)
		done := make(chan error, 1)
		go func() {
			done <- imc.UidFetch(seqset, items, messages)
		}()

		for msg := range messages {
			body := msg.GetBody(section)
			if body == nil {
				c.logger.Warn("Server returned no body", slog.Uint64("uid", uint64(msg.Uid)))
				continue
			}
			email, err := ParseMessage(body)
			if err != nil {
				c.logger.Warn("Failed to parse email",
					slog.Uint64("uid", uint64(msg.Uid)),
					slog.String("error", err.Error()),
				)
				continue
			}
			if email.MessageID == "" {
				email.MessageID = uidPrefix + strconv.FormatUint(uint64(msg.Uid), 10)
			}
			if email.ReceivedAt.IsZero() {
				email.ReceivedAt = msg.InternalDate.UTC()
			}
			emails = append(emails, email)
		}

		if err := <-done; err != nil {
			return fmt.Errorf("fetch messages: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return emails, nil
}

// MarkRead sets \Seen on the message with the given id
func (c *Client) MarkRead(ctx context.Context, messageID string) error {
	return c.session(ctx, func(imc *client.Client) error {
		var uids []uint32
		if raw, ok := strings.CutPrefix(messageID, uidPrefix); ok {
			uid, err := strconv.ParseUint(raw, 10, 32)
			if err != nil {
				return fmt.Errorf("invalid message id %q: %w", messageID, err)
			}
			uids = []uint32{uint32(uid)}
		} else {
			criteria := imap.NewSearchCriteria()
			criteria.Header.Add("Message-Id", messageID)
			found, err := imc.UidSearch(criteria)
			if err != nil {
				return fmt.Errorf("search message %s: %w", messageID, err)
			}
			uids = found
		}
		if len(uids) == 0 {
			return fmt.Errorf("message %s not found", messageID)
		}

		seqset := new(imap.SeqSet)
		seqset.AddNum(uids...)
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := imc.UidStore(seqset, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return fmt.Errorf("mark message %s read: %w", messageID, err)
		}
		return nil
	})
}

// session dials, logs in and selects the mailbox, then runs fn. The
// connection is torn down if ctx ends first.
func (c *Client) session(ctx context.Context, fn func(imc *client.Client) error) error {
	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	dialer := &net.Dialer{Timeout: c.config.DialTimeout}

	imc, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: c.config.Host})
	if err != nil {
		return fmt.Errorf("dial imap %s: %w", addr, err)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = imc.Terminate()
	})
	defer func() {
		stop()
		_ = imc.Logout()
	}()

	if err := imc.Login(c.config.User, c.config.Password); err != nil {
		return fmt.Errorf("imap login: %w", err)
	}
	if _, err := imc.Select(c.config.Mailbox, false); err != nil {
		return fmt.Errorf("select %s: %w", c.config.Mailbox, err)
	}

	if err := fn(imc); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}
