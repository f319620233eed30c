package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"discounthub/harvester/internal/domain"
)

// ProductRepository mirrors the snapshot's replace-by-source semantics into
// a database, for deployments that want the catalog queryable.
type ProductRepository interface {
	ReplaceSource(ctx context.Context, source string, batch []domain.Product) error
}

type productRepository struct {
	db *pgxpool.Pool
}

// NewProductRepository wraps a pgx pool.
func NewProductRepository(db *pgxpool.Pool) ProductRepository {
	return &productRepository{db: db}
}

// ReplaceSource deletes the source's prior rows and inserts the new batch in
// one transaction, so readers never see a half-replaced source.
func (r *productRepository) ReplaceSource(ctx context.Context, source string, batch []domain.Product) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace for %s: %w", source, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM products WHERE source = $1`, source); err != nil {
		return fmt.Errorf("delete prior %s rows: %w", source, err)
	}

	b := &pgx.Batch{}
	for _, p := range batch {
		b.Queue(`
		INSERT INTO products (name, url, image, source, category, original_price, price, discount_percentage, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			p.Name, p.URL, p.Image, p.Source, p.Category,
			p.OriginalPrice, p.Price, p.DiscountPercentage, p.Timestamp,
		)
	}
	if err := tx.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("insert %s batch: %w", source, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace for %s: %w", source, err)
	}
	return nil
}
