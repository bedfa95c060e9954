package profile

import (
	"context"
	"database/sql"
	"fmt"
)

type Repository interface {
	Create(ctx context.Context, p *Profile) error
	Get(ctx context.Context, id string) (*Profile, error)
	GetActive(ctx context.Context) (*Profile, error)
	LatestDraft(ctx context.Context) (*Profile, error)
	List(ctx context.Context) ([]Profile, error)
	CountByModel(ctx context.Context, provider, modelID string) (int, error)

	// ActivateExclusive retires every active profile and promotes the
	// given one, recording the collection it now serves. Runs in one
	// transaction so readers never observe zero or two active profiles.
	ActivateExclusive(ctx context.Context, id, collectionName string) error
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

const profileColumns = `id, name, provider, model_id, dimension, distance_metric, use_e5_prefix, base_url, batch_size, collection_name, alias_name, status, created_at, updated_at, activated_at`

func scanProfile(row interface{ Scan(...interface{}) error }) (*Profile, error) {
	p := &Profile{}
	var baseURL, collection sql.NullString
	err := row.Scan(&p.ID, &p.Name, &p.Provider, &p.ModelID, &p.Dimension, &p.DistanceMetric,
		&p.UseE5Prefix, &baseURL, &p.BatchSize, &collection, &p.AliasName, &p.Status,
		&p.CreatedAt, &p.UpdatedAt, &p.ActivatedAt)
	if err != nil {
		return nil, err
	}
	p.BaseURL = baseURL.String
	p.CollectionName = collection.String
	return p, nil
}

func (r *PostgresRepo) Create(ctx context.Context, p *Profile) error {
	query := `
		INSERT INTO embedding_profiles
			(name, provider, model_id, dimension, distance_metric, use_e5_prefix, base_url, batch_size, collection_name, alias_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at`
	return r.db.QueryRowContext(ctx, query,
		p.Name, p.Provider, p.ModelID, p.Dimension, p.DistanceMetric, p.UseE5Prefix,
		nullable(p.BaseURL), p.BatchSize, nullable(p.CollectionName), p.AliasName, p.Status).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM embedding_profiles WHERE id = $1`
	return scanProfile(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepo) GetActive(ctx context.Context) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM embedding_profiles WHERE status = $1 ORDER BY updated_at DESC LIMIT 1`
	return scanProfile(r.db.QueryRowContext(ctx, query, StatusActive))
}

func (r *PostgresRepo) LatestDraft(ctx context.Context) (*Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM embedding_profiles WHERE status = $1 ORDER BY created_at DESC LIMIT 1`
	return scanProfile(r.db.QueryRowContext(ctx, query, StatusDraft))
}

func (r *PostgresRepo) List(ctx context.Context) ([]Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM embedding_profiles ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

func (r *PostgresRepo) CountByModel(ctx context.Context, provider, modelID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM embedding_profiles WHERE provider = $1 AND model_id = $2`
	err := r.db.QueryRowContext(ctx, query, provider, modelID).Scan(&count)
	return count, err
}

func (r *PostgresRepo) ActivateExclusive(ctx context.Context, id, collectionName string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE embedding_profiles SET status = $1, updated_at = NOW() WHERE status = $2 AND id <> $3`,
		StatusRetired, StatusActive, id); err != nil {
		return fmt.Errorf("retire active profiles: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE embedding_profiles SET status = $1, collection_name = $2, activated_at = NOW(), updated_at = NOW() WHERE id = $3`,
		StatusActive, collectionName, id)
	if err != nil {
		return fmt.Errorf("activate profile %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}
