package availability

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebook/carebook/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type profileRepoPG struct{ pool *pgxpool.Pool }

// NewProfileRepoPG returns a Postgres-backed ProfileRepository.
func NewProfileRepoPG(pool *pgxpool.Pool) ProfileRepository { return &profileRepoPG{pool: pool} }

func (r *profileRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const profileCols = `id, provider_id, days, slot_minutes, online, active, created_at, updated_at`

func (r *profileRepoPG) scanProfile(row pgx.Row) (*Profile, error) {
	var p Profile
	var days []byte
	err := row.Scan(&p.ID, &p.ProviderID, &days, &p.SlotMinutes, &p.Online, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(days, &p.Days); err != nil {
		return nil, fmt.Errorf("decode days: %w", err)
	}
	return &p, nil
}

func (r *profileRepoPG) Create(ctx context.Context, p *Profile) error {
	p.ID = uuid.New()
	days, err := json.Marshal(p.Days)
	if err != nil {
		return fmt.Errorf("encode days: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO availability_profile (id, provider_id, days, slot_minutes, online, active)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		p.ID, p.ProviderID, days, p.SlotMinutes, p.Online, p.Active)
	return err
}

func (r *profileRepoPG) GetByProvider(ctx context.Context, providerID uuid.UUID) (*Profile, error) {
	return r.scanProfile(r.conn(ctx).QueryRow(ctx,
		`SELECT `+profileCols+` FROM availability_profile WHERE provider_id = $1`, providerID))
}

func (r *profileRepoPG) Update(ctx context.Context, p *Profile) error {
	days, err := json.Marshal(p.Days)
	if err != nil {
		return fmt.Errorf("encode days: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE availability_profile
		SET days=$2, slot_minutes=$3, online=$4, active=$5, updated_at=NOW()
		WHERE provider_id = $1`,
		p.ProviderID, days, p.SlotMinutes, p.Online, p.Active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
