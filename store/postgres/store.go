// Package postgres stores OTP records in PostgreSQL through pgx.
//
// Consume is a single UPDATE guarded by verified_at IS NULL, so concurrent
// submissions of the same code verify at most once.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/goOTP/record"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

//go:embed schema.sql
var schemaSQL string

// ErrUnavailable wraps every database failure.
var ErrUnavailable = errors.New("postgres otp store unavailable")

// DB is the subset of *pgxpool.Pool the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Option configures a [Store].
type Option func(*Store)

// WithTracer overrides the tracer. Defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(s *Store) {
		if t != nil {
			s.tracer = t
		}
	}
}

// Store implements goOTP.RecordStore on PostgreSQL.
type Store struct {
	db     DB
	tracer trace.Tracer
}

// New returns a Store using db. Call [Store.Migrate] once before first use.
func New(db DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		tracer: otel.Tracer("goOTP.store.postgres"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindClient), trace.WithAttributes(
		append(attrs, attribute.String("db.system", "postgresql"))...,
	))
}

func (s *Store) endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, record.ErrNotFound) && !errors.Is(err, record.ErrExpired) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Migrate creates the otp_records table and its indexes if missing.
func (s *Store) Migrate(ctx context.Context) (err error) {
	ctx, span := s.startSpan(ctx, "Migrate")
	defer func() { s.endSpan(span, err) }()

	if _, err = s.db.Exec(ctx, schemaSQL); err != nil {
		return unavailable(err)
	}
	return nil
}

const insertSQL = `
INSERT INTO otp_records (id, user_id, channel, code, created_at, expires_at, verified_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

// Insert persists rec, assigning an ID when empty.
func (s *Store) Insert(ctx context.Context, rec *record.Record) (err error) {
	ctx, span := s.startSpan(ctx, "Insert", attribute.String("otp.channel", string(rec.Channel)))
	defer func() { s.endSpan(span, err) }()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	_, err = s.db.Exec(ctx, insertSQL,
		rec.ID, rec.UserID, string(rec.Channel), rec.Code,
		rec.CreatedAt.UTC(), rec.ExpiresAt.UTC(), rec.VerifiedAt,
	)
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// supersedeSQL only touches rows with expires_at > now; already-expired rows keep their original expiry.
const supersedeSQL = `
UPDATE otp_records
SET expires_at = $3
WHERE user_id = $1 AND channel = $2 AND verified_at IS NULL AND expires_at > $3`

// Supersede forces every active record of (userID, ch) to expire at now.
func (s *Store) Supersede(ctx context.Context, userID string, ch record.Channel, now time.Time) (n int64, err error) {
	ctx, span := s.startSpan(ctx, "Supersede", attribute.String("otp.channel", string(ch)))
	defer func() { s.endSpan(span, err) }()

	tag, err := s.db.Exec(ctx, supersedeSQL, userID, string(ch), now.UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

const consumeSQL = `
UPDATE otp_records
SET verified_at = $4
WHERE id = (
    SELECT id FROM otp_records
    WHERE user_id = $1 AND channel = $2 AND code = $3
      AND verified_at IS NULL AND expires_at > $4
    ORDER BY created_at DESC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
) AND verified_at IS NULL
RETURNING id, user_id, channel, code, created_at, expires_at, verified_at`

const expiredMatchSQL = `
SELECT EXISTS (
    SELECT 1 FROM otp_records
    WHERE user_id = $1 AND channel = $2 AND code = $3
      AND verified_at IS NULL AND expires_at <= $4
)`

// Consume marks the active record matching code as verified at now.
// It returns [record.ErrExpired] when only expired unconsumed matches exist and
// [record.ErrNotFound] when there is none.
func (s *Store) Consume(ctx context.Context, userID string, ch record.Channel, code string, now time.Time) (rec *record.Record, err error) {
	ctx, span := s.startSpan(ctx, "Consume", attribute.String("otp.channel", string(ch)))
	defer func() { s.endSpan(span, err) }()

	rec, err = scanRecord(s.db.QueryRow(ctx, consumeSQL, userID, string(ch), code, now.UTC()))
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, unavailable(err)
	}

	var expired bool
	if err = s.db.QueryRow(ctx, expiredMatchSQL, userID, string(ch), code, now.UTC()).Scan(&expired); err != nil {
		return nil, unavailable(err)
	}
	if expired {
		return nil, record.ErrExpired
	}
	return nil, record.ErrNotFound
}

// DeleteExpired removes records of userID whose expiry is before now.
func (s *Store) DeleteExpired(ctx context.Context, userID string, now time.Time) (n int64, err error) {
	ctx, span := s.startSpan(ctx, "DeleteExpired")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.db.Exec(ctx, `DELETE FROM otp_records WHERE user_id = $1 AND expires_at < $2`, userID, now.UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

// DeleteAllExpired removes every record whose expiry is before now.
func (s *Store) DeleteAllExpired(ctx context.Context, now time.Time) (n int64, err error) {
	ctx, span := s.startSpan(ctx, "DeleteAllExpired")
	defer func() { s.endSpan(span, err) }()

	tag, err := s.db.Exec(ctx, `DELETE FROM otp_records WHERE expires_at < $1`, now.UTC())
	if err != nil {
		return 0, unavailable(err)
	}
	return tag.RowsAffected(), nil
}

const listSQL = `
SELECT id, user_id, channel, code, created_at, expires_at, verified_at
FROM otp_records
WHERE user_id = $1 AND channel = $2
ORDER BY created_at, id`

// List returns every record of (userID, ch), oldest first.
func (s *Store) List(ctx context.Context, userID string, ch record.Channel) (out []*record.Record, err error) {
	ctx, span := s.startSpan(ctx, "List", attribute.String("otp.channel", string(ch)))
	defer func() { s.endSpan(span, err) }()

	rows, err := s.db.Query(ctx, listSQL, userID, string(ch))
	if err != nil {
		return nil, unavailable(err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, scanErr := scanRecord(rows)
		if scanErr != nil {
			return nil, unavailable(scanErr)
		}
		out = append(out, rec)
	}
	if err = rows.Err(); err != nil {
		return nil, unavailable(err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*record.Record, error) {
	var (
		rec     record.Record
		channel string
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &channel, &rec.Code, &rec.CreatedAt, &rec.ExpiresAt, &rec.VerifiedAt); err != nil {
		return nil, err
	}
	rec.Channel = record.Channel(channel)
	return &rec, nil
}
