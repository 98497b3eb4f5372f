// README: Booking store backed by PostgreSQL; status writes are optimistic CAS.
package booking

import (
	"context"
	"database/sql"
	"errors"
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

func (s *PostgresStore) Create(ctx context.Context, b *Booking) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO bookings (
            id, customer_id, partner_id, status, status_version,
            service_type, bedrooms, bathrooms, masters, dwelling_type, addons, reference_photos,
            line1, city, zone, lat, lng, scheduled_at,
            base_cents, room_cents, dwelling_cents, addon_cents, surge_cents,
            tax_cents, promo_cents, credit_cents, total_cents, currency,
            surge_multiplier, duration_mins, payment_intent_ref, promo_code, created_at
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8, $9, $10, $11, $12,
            $13, $14, $15, $16, $17, $18,
            $19, $20, $21, $22, $23,
            $24, $25, $26, $27, $28,
            $29, $30, $31, $32, $33
        )`,
		string(b.ID),
		string(b.CustomerID),
		idPtr(b.PartnerID),
		string(b.Status),
		b.StatusVersion,
		string(b.Spec.ServiceType),
		b.Spec.Bedrooms, b.Spec.Bathrooms, b.Spec.Masters,
		string(b.Spec.DwellingType),
		b.Spec.AddOns,
		b.Spec.ReferencePhotos,
		b.Address.Line1, b.Address.City, b.Address.Zone,
		b.Address.Point.Lat, b.Address.Point.Lng,
		b.ScheduledAt,
		b.Totals.Base.Amount, b.Totals.RoomAdjustment.Amount, b.Totals.DwellingAdjustment.Amount,
		b.Totals.AddOns.Amount, b.Totals.Surge.Amount,
		b.Totals.Tax.Amount, b.Totals.Promo.Amount, b.Totals.Credits.Amount,
		b.Totals.Total.Amount, b.Totals.Total.Currency,
		b.SurgeMultiplier, b.DurationMins, b.PaymentIntentRef, b.PromoCode, b.CreatedAt,
	)
	return err
}

const bookingColumns = `
        id, customer_id, partner_id, status, status_version,
        service_type, bedrooms, bathrooms, masters, dwelling_type, addons, reference_photos,
        line1, city, zone, lat, lng, scheduled_at,
        base_cents, room_cents, dwelling_cents, addon_cents, surge_cents,
        tax_cents, promo_cents, credit_cents, total_cents, currency,
        surge_multiplier, duration_mins, payment_intent_ref, promo_code,
        created_at, dispatched_at, assigned_at, completed_at, cancelled_at,
        cancel_reason, cancel_fee_cents, refund_credit_cents`

func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*Booking, error) {
	row := s.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, string(id))
	b, err := scanBooking(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *PostgresStore) HasActiveByCustomer(ctx context.Context, customerID types.ID) (bool, error) {
	row := s.db.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM bookings
            WHERE customer_id = $1
              AND status NOT IN ('completed','disputed','no_match','cancelled')
        )`, string(customerID),
	)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, partnerID *types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE bookings
        SET status = $1,
            status_version = status_version + 1,
            partner_id = COALESCE($2, partner_id),
            dispatched_at = CASE WHEN $1 = 'searching' THEN NOW() ELSE dispatched_at END,
            assigned_at = CASE WHEN $1 = 'assigned' THEN NOW() ELSE assigned_at END,
            completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
            cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
        WHERE id = $3 AND status = $4 AND status_version = $5`,
		string(to),
		idPtr(partnerID),
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) UpdateCancellation(ctx context.Context, id types.ID, feeCents, refundCreditCents int64, reason string) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE bookings
        SET cancel_fee_cents = $1, refund_credit_cents = $2, cancel_reason = $3
        WHERE id = $4`,
		feeCents, refundCreditCents, reason, string(id),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Booking, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+bookingColumns+` FROM bookings WHERE status = $1 ORDER BY created_at LIMIT $2`,
		string(status), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO booking_events (
            booking_id, from_status, to_status, actor_type, actor_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.BookingID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		idPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var partnerID, cancelReason sql.NullString
	var scheduledAt, dispatchedAt, assignedAt, completedAt, cancelledAt sql.NullTime
	var cancelFee, refundCredit sql.NullInt64
	var currency string

	err := row.Scan(
		&b.ID, &b.CustomerID, &partnerID, &b.Status, &b.StatusVersion,
		&b.Spec.ServiceType, &b.Spec.Bedrooms, &b.Spec.Bathrooms, &b.Spec.Masters,
		&b.Spec.DwellingType, &b.Spec.AddOns, &b.Spec.ReferencePhotos,
		&b.Address.Line1, &b.Address.City, &b.Address.Zone,
		&b.Address.Point.Lat, &b.Address.Point.Lng, &scheduledAt,
		&b.Totals.Base.Amount, &b.Totals.RoomAdjustment.Amount, &b.Totals.DwellingAdjustment.Amount,
		&b.Totals.AddOns.Amount, &b.Totals.Surge.Amount,
		&b.Totals.Tax.Amount, &b.Totals.Promo.Amount, &b.Totals.Credits.Amount,
		&b.Totals.Total.Amount, &currency,
		&b.SurgeMultiplier, &b.DurationMins, &b.PaymentIntentRef, &b.PromoCode,
		&b.CreatedAt, &dispatchedAt, &assignedAt, &completedAt, &cancelledAt,
		&cancelReason, &cancelFee, &refundCredit,
	)
	if err != nil {
		return nil, err
	}

	if currency == "" {
		currency = types.DefaultCurrency
	}
	for _, m := range []*types.Money{
		&b.Totals.Base, &b.Totals.RoomAdjustment, &b.Totals.DwellingAdjustment,
		&b.Totals.AddOns, &b.Totals.Surge, &b.Totals.Tax,
		&b.Totals.Promo, &b.Totals.Credits, &b.Totals.Total,
	} {
		m.Currency = currency
	}

	if partnerID.Valid {
		p := types.ID(partnerID.String)
		b.PartnerID = &p
	}
	b.ScheduledAt = timePtr(scheduledAt)
	b.DispatchedAt = timePtr(dispatchedAt)
	b.AssignedAt = timePtr(assignedAt)
	b.CompletedAt = timePtr(completedAt)
	b.CancelledAt = timePtr(cancelledAt)
	if cancelReason.Valid {
		b.CancelReason = &cancelReason.String
	}
	if cancelFee.Valid {
		m := types.Money{Amount: cancelFee.Int64, Currency: currency}
		b.CancelFee = &m
	}
	if refundCredit.Valid {
		m := types.Money{Amount: refundCredit.Int64, Currency: currency}
		b.RefundCredit = &m
	}
	return &b, nil
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func timePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
