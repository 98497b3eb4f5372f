// README: Postgres offer store; terminal transitions stamp resolved_at in the CAS update.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"sparkle/internal/types"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const offerColumns = `id, booking_id, target_partner_id, payout_cents, payout_currency,
	surge_multiplier, round, status, status_version, accepted_by, idempotency_key,
	expires_at, created_at, resolved_at`

func (s *PostgresStore) Create(ctx context.Context, o *Offer) error {
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO offers (id, booking_id, target_partner_id, payout_cents, payout_currency,
			surge_multiplier, round, status, status_version, accepted_by, idempotency_key,
			expires_at, created_at, resolved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		o.ID, o.BookingID, idStr(o.TargetPartnerID), o.Payout.Amount, o.Payout.Currency,
		o.SurgeMultiplier, o.Round, o.Status, o.StatusVersion, idStr(o.AcceptedBy), nullStr(o.IdempotencyKey),
		o.ExpiresAt, o.CreatedAt, o.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

func scanOffer(row pgx.Row) (*Offer, error) {
	var o Offer
	var target, accepted, idemKey *string
	var currency string
	var resolved *time.Time
	err := row.Scan(&o.ID, &o.BookingID, &target, &o.Payout.Amount, &currency,
		&o.SurgeMultiplier, &o.Round, &o.Status, &o.StatusVersion, &accepted, &idemKey,
		&o.ExpiresAt, &o.CreatedAt, &resolved)
	if err != nil {
		return nil, err
	}
	o.Payout.Currency = currency
	if target != nil {
		id := types.ID(*target)
		o.TargetPartnerID = &id
	}
	if accepted != nil {
		id := types.ID(*accepted)
		o.AcceptedBy = &id
	}
	if idemKey != nil {
		o.IdempotencyKey = *idemKey
	}
	o.ResolvedAt = resolved
	return &o, nil
}

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Offer, error) {
	row := s.db.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, id)
	o, err := scanOffer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get offer: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) LiveByBooking(ctx context.Context, bookingID types.ID) (*Offer, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+offerColumns+` FROM offers
		WHERE booking_id = $1 AND status = 'offered'
		ORDER BY created_at DESC LIMIT 1`, bookingID)
	o, err := scanOffer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("live offer by booking: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) LatestByBooking(ctx context.Context, bookingID types.ID) (*Offer, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+offerColumns+` FROM offers
		WHERE booking_id = $1
		ORDER BY round DESC, created_at DESC LIMIT 1`, bookingID)
	o, err := scanOffer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("latest offer by booking: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id types.ID, from, to OfferStatus, version int, acceptedBy *types.ID, idemKey string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE offers
		SET status = $1,
		    status_version = status_version + 1,
		    accepted_by = COALESCE($2, accepted_by),
		    idempotency_key = COALESCE($3, idempotency_key),
		    resolved_at = CASE WHEN $1 <> 'offered' AND resolved_at IS NULL THEN NOW() ELSE resolved_at END
		WHERE id = $4 AND status = $5 AND status_version = $6`,
		to, idStr(acceptedBy), nullStr(idemKey), id, from, version,
	)
	if err != nil {
		return false, fmt.Errorf("update offer status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Offer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+offerColumns+` FROM offers
		WHERE status = 'offered' AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired offers: %w", err)
	}
	defer rows.Close()
	var out []*Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired offer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) VoidSiblings(ctx context.Context, bookingID, exceptID types.ID) (int, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE offers
		SET status = 'void', status_version = status_version + 1, resolved_at = NOW()
		WHERE booking_id = $1 AND id <> $2 AND status = 'offered'`,
		bookingID, exceptID,
	)
	if err != nil {
		return 0, fmt.Errorf("void sibling offers: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) RecordDecline(ctx context.Context, offerID, partnerID types.ID) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO offer_declines (offer_id, partner_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (offer_id, partner_id) DO NOTHING`,
		offerID, partnerID,
	)
	if err != nil {
		return fmt.Errorf("record decline: %w", err)
	}
	return nil
}

func (s *PostgresStore) HasDeclined(ctx context.Context, offerID, partnerID types.ID) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM offer_declines WHERE offer_id = $1 AND partner_id = $2)`,
		offerID, partnerID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("has declined: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListOpenForPartner(ctx context.Context, partnerID types.ID, now time.Time) ([]*Offer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+offerColumns+` FROM offers o
		WHERE o.status = 'offered' AND o.expires_at > $2
		  AND (o.target_partner_id = $1
		       OR (o.target_partner_id IS NULL AND NOT EXISTS (
		             SELECT 1 FROM offer_declines d
		             WHERE d.offer_id = o.id AND d.partner_id = $1)))
		ORDER BY o.created_at`, partnerID, now)
	if err != nil {
		return nil, fmt.Errorf("list open offers: %w", err)
	}
	defer rows.Close()
	var out []*Offer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan open offer: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func idStr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	s := string(*id)
	return &s
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
