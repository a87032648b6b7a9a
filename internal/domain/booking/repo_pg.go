package booking

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/carebook/internal/domain/availability"
	"github.com/carebook/carebook/internal/platform/db"
	"github.com/carebook/carebook/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct{ pool *pgxpool.Pool }

// NewRepoPG returns a Postgres-backed Repository.
func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const bookingCols = `id, provider_id, patient_id, date, start_minutes, end_minutes, status, consultation_type, payment_intent_id, created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var start, end int
	var status, ctype string
	err := row.Scan(&b.ID, &b.ProviderID, &b.PatientID, &b.Date, &start, &end,
		&status, &ctype, &b.PaymentIntentID, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	b.Start = availability.TimeOfDay(start)
	b.End = availability.TimeOfDay(end)
	b.Status = Status(status)
	b.ConsultationType = ConsultationType(ctype)
	return &b, nil
}

// Create writes the booking inside one transaction: an overlap check
// against active rows, then the insert. The partial unique index on
// (provider_id, date, start_minutes) backs the check up, so a 23505 from
// a racing insert surfaces as ErrSlotNoLongerAvailable too.
func (r *repoPG) Create(ctx context.Context, b *Booking) error {
	b.ID = uuid.New()
	now := time.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	err := db.WithTx(ctx, r.pool, func(ctx context.Context) error {
		var taken bool
		err := r.conn(ctx).QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM booking
				WHERE provider_id = $1 AND date = $2
				  AND status IN ('pending','confirmed')
				  AND start_minutes < $4 AND $3 < end_minutes
			)`,
			b.ProviderID, b.Date, int(b.Start), int(b.End)).Scan(&taken)
		if err != nil {
			return err
		}
		if taken {
			return ErrSlotNoLongerAvailable
		}

		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO booking (id, provider_id, patient_id, date, start_minutes, end_minutes, status, consultation_type, payment_intent_id, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			b.ID, b.ProviderID, b.PatientID, b.Date, int(b.Start), int(b.End),
			string(b.Status), string(b.ConsultationType), b.PaymentIntentID, b.CreatedAt, b.UpdatedAt)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlotNoLongerAvailable
		}
		return err
	}
	return nil
}

func (r *repoPG) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return scanBooking(r.conn(ctx).QueryRow(ctx,
		`SELECT `+bookingCols+` FROM booking WHERE id = $1`, id))
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE booking SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, p pagination.Params) ([]Booking, int, error) {
	return r.list(ctx,
		`WHERE patient_id = $1`,
		[]interface{}{patientID}, p)
}

func (r *repoPG) ListByProviderDay(ctx context.Context, providerID uuid.UUID, date string, p pagination.Params) ([]Booking, int, error) {
	return r.list(ctx,
		`WHERE provider_id = $1 AND date = $2`,
		[]interface{}{providerID, date}, p)
}

func (r *repoPG) list(ctx context.Context, where string, args []interface{}, p pagination.Params) ([]Booking, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM booking `+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + bookingCols + ` FROM booking ` + where +
		` ORDER BY date DESC, start_minutes DESC LIMIT ` + placeholder(len(args)+1) +
		` OFFSET ` + placeholder(len(args)+2)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, p.Limit, p.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *b)
	}
	return out, total, rows.Err()
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (r *repoPG) ActiveIntervals(ctx context.Context, providerID uuid.UUID, date string) ([]availability.BookedInterval, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT start_minutes, end_minutes FROM booking
		WHERE provider_id = $1 AND date = $2 AND status IN ('pending','confirmed')
		ORDER BY start_minutes`,
		providerID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []availability.BookedInterval
	for rows.Next() {
		var start, end int
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		out = append(out, availability.BookedInterval{
			Start: availability.TimeOfDay(start),
			End:   availability.TimeOfDay(end),
		})
	}
	return out, rows.Err()
}
