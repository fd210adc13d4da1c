package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.ConfigVersionStore = (*configVersionStore)(nil)

// configVersionStore implements driven.ConfigVersionStore.
type configVersionStore struct {
	store *Store
}

var configVersionColumns = []string{"id", "params", "note", "restored_from", "created_at"}

// Append stores a new snapshot. The raw params bytes are kept as given.
func (s *configVersionStore) Append(ctx context.Context, v *domain.ConfigurationVersion) (int64, error) {
	raw := v.Raw
	if len(raw) == 0 {
		var err error
		if raw, err = v.Params.Canonical(); err != nil {
			return 0, fmt.Errorf("encoding params: %w", err)
		}
	}

	var restoredFrom sql.NullInt64
	if v.RestoredFrom != nil {
		restoredFrom = sql.NullInt64{Int64: *v.RestoredFrom, Valid: true}
	}

	insert := s.store.sb.Insert("config_versions").
		Columns("params", "note", "restored_from", "created_at").
		Values(raw, v.Note, restoredFrom, toNanos(s.store.now())).
		Suffix("RETURNING id")

	row, err := queryRow(ctx, s.store.db, insert)
	if err != nil {
		return 0, err
	}
	var id int64
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("inserting config version: %w", err)
	}
	return id, nil
}

// Get retrieves a snapshot by ID.
func (s *configVersionStore) Get(ctx context.Context, id int64) (*domain.ConfigurationVersion, error) {
	row, err := queryRow(ctx, s.store.db,
		s.store.sb.Select(configVersionColumns...).From("config_versions").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, err
	}
	return scanConfigVersion(row)
}

// Latest returns the snapshot with the highest ID.
func (s *configVersionStore) Latest(ctx context.Context) (*domain.ConfigurationVersion, error) {
	row, err := queryRow(ctx, s.store.db,
		s.store.sb.Select(configVersionColumns...).From("config_versions").OrderBy("id DESC").Limit(1))
	if err != nil {
		return nil, err
	}
	return scanConfigVersion(row)
}

// List returns every snapshot in ascending ID order.
func (s *configVersionStore) List(ctx context.Context) ([]domain.ConfigurationVersion, error) {
	rows, err := query(ctx, s.store.db,
		s.store.sb.Select(configVersionColumns...).From("config_versions").OrderBy("id ASC"))
	if err != nil {
		return nil, fmt.Errorf("listing config versions: %w", err)
	}
	defer rows.Close()

	var out []domain.ConfigurationVersion
	for rows.Next() {
		v, err := scanConfigVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanConfigVersion(row scanner) (*domain.ConfigurationVersion, error) {
	var (
		v            domain.ConfigurationVersion
		raw          []byte
		restoredFrom sql.NullInt64
		createdAt    int64
	)
	err := row.Scan(&v.ID, &raw, &v.Note, &restoredFrom, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrConfigurationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning config version: %w", err)
	}

	params, err := domain.DecodeParams(raw)
	if err != nil {
		return nil, fmt.Errorf("config version %d: %w", v.ID, err)
	}
	v.Params = params
	v.Raw = raw
	if restoredFrom.Valid {
		from := restoredFrom.Int64
		v.RestoredFrom = &from
	}
	v.CreatedAt = fromNanos(createdAt)
	return &v, nil
}
