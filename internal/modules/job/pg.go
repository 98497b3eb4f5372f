// README: Postgres job store; one row per booking, CAS with status-driven stamping.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sparkle/internal/modules/booking"
	"sparkle/internal/types"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const jobColumns = `booking_id, partner_id, customer_id, status, status_version,
	verification_method, verification_verified, verification_expires_at,
	required_before, required_after, before_photos, after_photos,
	pause_reason, dispute_ticket, created_at, enroute_at, arrived_at, started_at, completed_at`

func (s *PostgresStore) Create(ctx context.Context, j *Job) error {
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO job_states (booking_id, partner_id, customer_id, status, status_version,
			verification_method, verification_verified, verification_expires_at,
			required_before, required_after, before_photos, after_photos,
			pause_reason, dispute_ticket, created_at, enroute_at, arrived_at, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		j.BookingID, j.PartnerID, j.CustomerID, j.Status, j.StatusVersion,
		nullIfEmpty(j.Verification.Method), j.Verification.Verified, j.Verification.ExpiresAt,
		j.RequiredBefore, j.RequiredAfter, j.BeforePhotos, j.AfterPhotos,
		j.PauseReason, j.DisputeTicket, j.CreatedAt, j.EnrouteAt, j.ArrivedAt, j.StartedAt, j.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func scanJob(row pgx.Row) (*Job, error) {
	var j Job
	var method *string
	err := row.Scan(&j.BookingID, &j.PartnerID, &j.CustomerID, &j.Status, &j.StatusVersion,
		&method, &j.Verification.Verified, &j.Verification.ExpiresAt,
		&j.RequiredBefore, &j.RequiredAfter, &j.BeforePhotos, &j.AfterPhotos,
		&j.PauseReason, &j.DisputeTicket, &j.CreatedAt, &j.EnrouteAt, &j.ArrivedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	if method != nil {
		j.Verification.Method = *method
	}
	return &j, nil
}

func (s *PostgresStore) Get(ctx context.Context, bookingID types.ID) (*Job, error) {
	row := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM job_states WHERE booking_id = $1`, bookingID)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, bookingID types.ID, from, to booking.Status, version int, detail *string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE job_states
		SET status = $1,
		    status_version = status_version + 1,
		    pause_reason = CASE WHEN $1 = 'paused' THEN $2
		                        WHEN $1 = 'in_progress' THEN NULL
		                        ELSE pause_reason END,
		    dispute_ticket = CASE WHEN $1 = 'disputed' THEN $2 ELSE dispute_ticket END,
		    enroute_at = CASE WHEN $1 = 'enroute' THEN NOW() ELSE enroute_at END,
		    arrived_at = CASE WHEN $1 = 'arrived' THEN NOW() ELSE arrived_at END,
		    started_at = CASE WHEN $1 = 'in_progress' AND started_at IS NULL THEN NOW() ELSE started_at END,
		    completed_at = CASE WHEN $1 IN ('completed', 'disputed') THEN NOW() ELSE completed_at END
		WHERE booking_id = $3 AND status = $4 AND status_version = $5`,
		to, detail, bookingID, from, version,
	)
	if err != nil {
		return false, fmt.Errorf("update job status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) SetVerification(ctx context.Context, bookingID types.ID, v Verification) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE job_states
		SET verification_method = $1, verification_verified = $2, verification_expires_at = $3
		WHERE booking_id = $4`,
		nullIfEmpty(v.Method), v.Verified, v.ExpiresAt, bookingID,
	)
	if err != nil {
		return fmt.Errorf("set verification: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AddPhotos(ctx context.Context, bookingID types.ID, kind PhotoKind, urls []string) error {
	column := "before_photos"
	if kind == PhotoAfter {
		column = "after_photos"
	}
	tag, err := s.db.Exec(ctx, `
		UPDATE job_states SET `+column+` = `+column+` || $1 WHERE booking_id = $2`,
		urls, bookingID,
	)
	if err != nil {
		return fmt.Errorf("add %s photos: %w", kind, err)
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
