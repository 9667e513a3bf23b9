package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/kozaktomas/rollcall/internal/database"
)

// ReferenceRepository caches reference descriptors in PostgreSQL.
type ReferenceRepository struct {
	pool *Pool
}

// NewReferenceRepository creates a new PostgreSQL reference repository.
func NewReferenceRepository(pool *Pool) *ReferenceRepository {
	return &ReferenceRepository{pool: pool}
}

var _ database.ReferenceCache = (*ReferenceRepository)(nil)

// GetReference returns the cached descriptor if the portrait hash still matches.
func (r *ReferenceRepository) GetReference(ctx context.Context, identifier, imageHash, model string) (*database.StoredReference, error) {
	query := `
		SELECT identifier, image_hash, model, descriptor, created_at
		FROM reference_descriptors
		WHERE identifier = $1 AND model = $2 AND image_hash = $3
	`

	var ref database.StoredReference
	var vec pgvector.Vector
	err := r.pool.QueryRow(ctx, query, identifier, model, imageHash).Scan(
		&ref.Identifier, &ref.ImageHash, &ref.Model, &vec, &ref.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, database.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reference %s: %w", identifier, err)
	}
	ref.Descriptor = vec.Slice()
	return &ref, nil
}

// SaveReference inserts or replaces the descriptor for (identifier, model).
func (r *ReferenceRepository) SaveReference(ctx context.Context, ref database.StoredReference) error {
	if len(ref.Descriptor) == 0 {
		return errors.New("cannot store an empty descriptor")
	}

	query := `
		INSERT INTO reference_descriptors (identifier, model, image_hash, descriptor)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (identifier, model) DO UPDATE SET
			image_hash = EXCLUDED.image_hash,
			descriptor = EXCLUDED.descriptor,
			created_at = NOW()
	`
	if _, err := r.pool.Exec(ctx, query, ref.Identifier, ref.Model, ref.ImageHash, pgvector.NewVector(ref.Descriptor)); err != nil {
		return fmt.Errorf("save reference %s: %w", ref.Identifier, err)
	}
	return nil
}

// Count returns the number of cached descriptors.
func (r *ReferenceRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM reference_descriptors").Scan(&count); err != nil {
		return 0, fmt.Errorf("count references: %w", err)
	}
	return count, nil
}
