package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
)

type postgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

func (r *postgresRepository) List(ctx context.Context) ([]Item, error) {
	const query = `SELECT id, name, description, price, stock, created_at FROM products ORDER BY created_at, id`

	items := make([]Item, 0)
	if err := r.db.SelectContext(ctx, &items, query); err != nil {
		return nil, fmt.Errorf("repository: failed to list products: %w", err)
	}
	return items, nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Item, error) {
	const query = `SELECT id, name, description, price, stock, created_at FROM products WHERE id = $1`

	var item Item
	if err := r.db.GetContext(ctx, &item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: failed to get product %s: %w", id, err)
	}
	return &item, nil
}

func (r *postgresRepository) Create(ctx context.Context, item *Item) error {
	const query = `
		INSERT INTO products (id, name, description, price, stock, created_at)
		VALUES (:id, :name, :description, :price, :stock, :created_at)`

	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return fmt.Errorf("repository: failed to insert product: %w", err)
	}
	return nil
}

func (r *postgresRepository) Update(ctx context.Context, item *Item) error {
	const query = `
		UPDATE products
		SET name = :name, description = :description, price = :price, stock = :stock
		WHERE id = :id`

	res, err := r.db.NamedExecContext(ctx, query, item)
	if err != nil {
		return fmt.Errorf("repository: failed to update product %s: %w", item.ID, err)
	}
	return requireAffected(res)
}

func (r *postgresRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("repository: failed to delete product %s: %w", id, err)
	}
	return requireAffected(res)
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
