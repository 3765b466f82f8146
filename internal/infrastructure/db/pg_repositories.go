package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/RodolfoDevApp/eventshop-rentals-go/internal/domain"
)

type PgStockItemRepository struct {
	q querier
}

func NewPgStockItemRepository(db *sql.DB) *PgStockItemRepository {
	return &PgStockItemRepository{q: db}
}

func (r *PgStockItemRepository) GetByID(
	ctx context.Context,
	productID uuid.UUID,
) (*domain.StockItem, error) {
	query := `
        select product_id, sku, stock_total, turnaround_days, is_active, updated_at_utc
        from rental_stock_items
        where product_id = $1
    `
	var item domain.StockItem
	if err := r.q.QueryRowContext(ctx, query, productID).Scan(
		&item.ProductID,
		&item.Sku,
		&item.StockTotal,
		&item.TurnaroundDays,
		&item.IsActive,
		&item.UpdatedAtUtc,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("stock item %s: %w", productID, domain.ErrNotFound)
		}
		return nil, err
	}
	item.UpdatedAtUtc = item.UpdatedAtUtc.UTC()
	return &item, nil
}

func (r *PgStockItemRepository) Upsert(
	ctx context.Context,
	item *domain.StockItem,
) error {
	if item.UpdatedAtUtc.IsZero() {
		item.UpdatedAtUtc = time.Now().UTC()
	}

	query := `
        insert into rental_stock_items (product_id, sku, stock_total, turnaround_days, is_active, updated_at_utc)
        values ($1,$2,$3,$4,$5,$6)
        on conflict (product_id) do update
        set sku = excluded.sku,
            stock_total = excluded.stock_total,
            turnaround_days = excluded.turnaround_days,
            is_active = excluded.is_active,
            updated_at_utc = excluded.updated_at_utc
    `
	_, err := r.q.ExecContext(
		ctx, query,
		item.ProductID,
		item.Sku,
		item.StockTotal,
		item.TurnaroundDays,
		item.IsActive,
		item.UpdatedAtUtc,
	)
	return err
}

// Packages

type PgPackageRepository struct {
	q querier
}

func NewPgPackageRepository(db *sql.DB) *PgPackageRepository {
	return &PgPackageRepository{q: db}
}

func (r *PgPackageRepository) GetByID(
	ctx context.Context,
	id uuid.UUID,
) (*domain.Package, error) {
	query := `
        select id, name, is_active, updated_at_utc
        from rental_packages
        where id = $1
    `
	var p domain.Package
	if err := r.q.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.IsActive,
		&p.UpdatedAtUtc,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("package %s: %w", id, domain.ErrNotFound)
		}
		return nil, err
	}
	p.UpdatedAtUtc = p.UpdatedAtUtc.UTC()

	// Load components in catalog order
	cq := `
        select product_id, quantity_per_person, optional
        from rental_package_components
        where package_id = $1
        order by position asc
    `
	rows, err := r.q.QueryContext(ctx, cq, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	components := []domain.PackageComponent{}
	for rows.Next() {
		var c domain.PackageComponent
		if err := rows.Scan(&c.ProductID, &c.QuantityPerPerson, &c.Optional); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	p.Components = components
	return &p, nil
}

// Upsert replaces the package row and all of its components. Callers run
// it inside a unit of work so the replacement is atomic.
func (r *PgPackageRepository) Upsert(
	ctx context.Context,
	p *domain.Package,
) error {
	if p.UpdatedAtUtc.IsZero() {
		p.UpdatedAtUtc = time.Now().UTC()
	}

	q := `
        insert into rental_packages (id, name, is_active, updated_at_utc)
        values ($1,$2,$3,$4)
        on conflict (id) do update
        set name = excluded.name,
            is_active = excluded.is_active,
            updated_at_utc = excluded.updated_at_utc
    `
	if _, err := r.q.ExecContext(ctx, q, p.ID, p.Name, p.IsActive, p.UpdatedAtUtc); err != nil {
		return err
	}

	if _, err := r.q.ExecContext(ctx, `delete from rental_package_components where package_id = $1`, p.ID); err != nil {
		return err
	}

	cq := `
        insert into rental_package_components
        (package_id, position, product_id, quantity_per_person, optional)
        values ($1,$2,$3,$4,$5)
    `
	for i, c := range p.Components {
		if _, err := r.q.ExecContext(
			ctx, cq,
			p.ID, i, c.ProductID, c.QuantityPerPerson, c.Optional,
		); err != nil {
			return err
		}
	}
	return nil
}
