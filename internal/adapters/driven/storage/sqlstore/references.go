package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/custodia-labs/ruleforge/internal/core/domain"
	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// Verify interface compliance.
var _ driven.ReferenceStore = (*referenceStore)(nil)

// referenceStore implements driven.ReferenceStore.
type referenceStore struct {
	store *Store
}

var referenceColumns = []string{"id", "title", "body", "embedding", "model", "created_at"}

// upsertSuffix replaces every column but the key on conflict. Both dialects
// accept this form.
const upsertSuffix = `ON CONFLICT(id) DO UPDATE SET
	title = excluded.title,
	body = excluded.body,
	embedding = excluded.embedding,
	model = excluded.model,
	created_at = excluded.created_at`

// SaveReferences inserts or replaces references by ID in one transaction.
func (s *referenceStore) SaveReferences(ctx context.Context, refs []domain.Reference) error {
	for _, ref := range refs {
		if ref.ID == "" {
			return fmt.Errorf("%w: reference without ID", domain.ErrInvalidInput)
		}
	}
	if len(refs) == 0 {
		return nil
	}

	return s.store.inTx(ctx, func(tx *sql.Tx) error {
		for _, ref := range refs {
			_, err := exec(ctx, tx, s.store.sb.Insert("reference_rules").Columns(referenceColumns...).
				Values(ref.ID, ref.Title, ref.Body, float32SliceToBytes(ref.Embedding), ref.Model, toNanos(ref.CreatedAt)).
				Suffix(upsertSuffix))
			if err != nil {
				return fmt.Errorf("saving reference %s: %w", ref.ID, err)
			}
		}
		return nil
	})
}

// ListReferences returns every reference ordered by ID.
func (s *referenceStore) ListReferences(ctx context.Context) ([]domain.Reference, error) {
	rows, err := query(ctx, s.store.db,
		s.store.sb.Select(referenceColumns...).From("reference_rules").OrderBy("id ASC"))
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}
	defer rows.Close()

	out := []domain.Reference{}
	for rows.Next() {
		var (
			ref       domain.Reference
			embedding []byte
			createdAt int64
		)
		if err := rows.Scan(&ref.ID, &ref.Title, &ref.Body, &embedding, &ref.Model, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning reference: %w", err)
		}
		ref.Embedding = bytesToFloat32Slice(embedding)
		ref.CreatedAt = fromNanos(createdAt)
		out = append(out, ref)
	}
	return out, rows.Err()
}

// DeleteReference removes a reference.
func (s *referenceStore) DeleteReference(ctx context.Context, id string) error {
	res, err := exec(ctx, s.store.db, s.store.sb.Delete("reference_rules").Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("deleting reference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("reference %s: %w", id, domain.ErrNotFound)
	}
	return nil
}
