// README: Settlement store backed by PostgreSQL; rating inserts are
// first-writer-wins via ON CONFLICT DO NOTHING.
package settlement

import (
	"context"
	"errors"

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

// ratingTable maps a rater side to its table. Sides are closed constants, so
// the table name never carries caller input.
func ratingTable(side RaterType) string {
	if side == RaterPartner {
		return "partner_ratings"
	}
	return "customer_ratings"
}

const ratingColumns = `
        booking_id, rater_id, ratee_id, stars, tags, comment, tip_cents, idempotency_key, created_at`

func (s *PostgresStore) InsertRating(ctx context.Context, r *Rating) (*Rating, bool, error) {
	tag, err := s.db.Exec(ctx, `
        INSERT INTO `+ratingTable(r.RaterType)+` (
            booking_id, rater_id, ratee_id, stars, tags, comment, tip_cents, idempotency_key, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (booking_id) DO NOTHING`,
		string(r.BookingID),
		string(r.RaterID),
		string(r.RateeID),
		r.Stars,
		r.Tags,
		r.Comment,
		r.TipCents,
		r.IdempotencyKey,
		r.CreatedAt,
	)
	if err != nil {
		return nil, false, err
	}
	stored, err := s.GetRating(ctx, r.BookingID, r.RaterType)
	if err != nil {
		return nil, false, err
	}
	return stored, tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) GetRating(ctx context.Context, bookingID types.ID, side RaterType) (*Rating, error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+ratingColumns+` FROM `+ratingTable(side)+` WHERE booking_id = $1`,
		string(bookingID),
	)
	var r Rating
	err := row.Scan(
		&r.BookingID, &r.RaterID, &r.RateeID, &r.Stars, &r.Tags,
		&r.Comment, &r.TipCents, &r.IdempotencyKey, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	r.RaterType = side
	return &r, nil
}

func (s *PostgresStore) InsertTip(ctx context.Context, t *Tip) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO tips (
            id, booking_id, amount_cents, currency, status, ref, idempotency_key, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(t.ID),
		string(t.BookingID),
		t.Amount.Amount,
		t.Amount.Currency,
		string(t.Status),
		t.Ref,
		t.IdempotencyKey,
		t.CreatedAt,
	)
	return err
}

func (s *PostgresStore) TipsByBooking(ctx context.Context, bookingID types.ID) ([]*Tip, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, booking_id, amount_cents, currency, status, ref, idempotency_key, created_at
        FROM tips WHERE booking_id = $1 ORDER BY created_at, id`,
		string(bookingID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Tip
	for rows.Next() {
		var t Tip
		if err := rows.Scan(
			&t.ID, &t.BookingID, &t.Amount.Amount, &t.Amount.Currency,
			&t.Status, &t.Ref, &t.IdempotencyKey, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
