package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goOTP "github.com/MrEthical07/goOTP"
	"github.com/nats-io/nats.go"
	"github.com/sethvargo/go-retry"
)

var (
	// ErrNATSURLRequired is returned by ConnectNATS when url is empty.
	ErrNATSURLRequired = errors.New("notify: nats url is required")
	// ErrNATSConnRequired is returned by NewNATSPublisher when conn is nil.
	ErrNATSConnRequired = errors.New("notify: nats connection is required")
)

const (
	headerUserID  = "Otp-User-Id"
	headerChannel = "Otp-Channel"
)

// Message is the JSON body published for each notification. Downstream
// email and SMS workers render and send it.
type Message struct {
	UserID           string    `json:"user_id"`
	Channel          string    `json:"channel"`
	Code             string    `json:"code"`
	ExpiresAt        time.Time `json:"expires_at"`
	ExpiresInMinutes int       `json:"expires_in_minutes"`
}

// NATSConn is the subset of *nats.Conn the publisher needs.
type NATSConn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
}

// NATSOptions configures a [NATSPublisher].
type NATSOptions struct {
	// SubjectPrefix is joined with the channel: "<prefix>.email". Defaults to "otp.deliver".
	SubjectPrefix string
	// MaxRetries bounds publish retries after the first attempt. Defaults to 3.
	MaxRetries uint64
	// Backoff is the first retry delay, doubled each retry. Defaults to 100ms.
	Backoff time.Duration
	Logger  *slog.Logger
}

// NATSPublisher hands notifications to delivery workers over NATS.
type NATSPublisher struct {
	conn   NATSConn
	opts   NATSOptions
	closer func() error
}

// NewNATSPublisher wraps an existing connection.
func NewNATSPublisher(conn NATSConn, opts NATSOptions) (*NATSPublisher, error) {
	if conn == nil {
		return nil, ErrNATSConnRequired
	}
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = "otp.deliver"
	}
	if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 100 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &NATSPublisher{conn: conn, opts: opts}, nil
}

// ConnectNATS dials url and returns a publisher owning the connection.
func ConnectNATS(url string, opts NATSOptions, natsOpts ...nats.Option) (*NATSPublisher, error) {
	if url == "" {
		return nil, ErrNATSURLRequired
	}
	conn, err := nats.Connect(url, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("notify: nats connect: %w", err)
	}
	p, err := NewNATSPublisher(conn, opts)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.closer = func() error {
		err := conn.Drain()
		conn.Close()
		return err
	}
	return p, nil
}

// Subject returns the subject notifications for ch are published to.
func (p *NATSPublisher) Subject(ch goOTP.Channel) string {
	return p.opts.SubjectPrefix + "." + string(ch)
}

// Send publishes n and flushes, retrying transient failures with
// exponential backoff until ctx is done or retries run out.
func (p *NATSPublisher) Send(ctx context.Context, n goOTP.Notification) error {
	body, err := json.Marshal(Message{
		UserID:           n.UserID,
		Channel:          string(n.Channel),
		Code:             n.Code,
		ExpiresAt:        n.ExpiresAt.UTC(),
		ExpiresInMinutes: n.ExpiresInMinutes,
	})
	if err != nil {
		return fmt.Errorf("notify: encode message: %w", err)
	}

	subject := p.Subject(n.Channel)
	b := retry.WithMaxRetries(p.opts.MaxRetries, retry.NewExponential(p.opts.Backoff))

	attempt := 0
	return retry.Do(ctx, b, func(ctx context.Context) error {
		attempt++
		msg := nats.NewMsg(subject)
		msg.Data = body
		msg.Header.Set(headerUserID, n.UserID)
		msg.Header.Set(headerChannel, string(n.Channel))

		if err := p.conn.PublishMsg(msg); err != nil {
			if errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubject) {
				return fmt.Errorf("notify: nats publish: %w", err)
			}
			p.opts.Logger.WarnContext(ctx, "goOTP: nats publish failed, retrying",
				"subject", subject, "attempt", attempt, "error", err)
			return retry.RetryableError(fmt.Errorf("notify: nats publish: %w", err))
		}
		if err := p.conn.FlushWithContext(ctx); err != nil {
			p.opts.Logger.WarnContext(ctx, "goOTP: nats flush failed, retrying",
				"subject", subject, "attempt", attempt, "error", err)
			return retry.RetryableError(fmt.Errorf("notify: nats flush: %w", err))
		}
		return nil
	})
}

// Close drains and closes the connection when the publisher owns it.
func (p *NATSPublisher) Close() error {
	if p == nil || p.closer == nil {
		return nil
	}
	return p.closer()
}
