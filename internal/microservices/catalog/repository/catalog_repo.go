package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"comanda/internal/connections/database"
	"comanda/internal/domain"
)

type CatalogRepositoryInterface interface {
	GetBranchBySlug(ctx context.Context, slug string) (domain.Branch, error)
	BuildSnapshot(ctx context.Context, slug string) (domain.CatalogSnapshot, error)
	GetQuotes(ctx context.Context, slug string) (map[int64]domain.DynamicQuote, error)

	UpdateProductStatic(ctx context.Context, slug string, productID int64, in StaticUpdate) error
	SetProductPricing(ctx context.Context, slug string, productID int64, price decimal.Decimal, stock int) error
	SetProductActive(ctx context.Context, slug string, productID int64, active bool) error
}

type StaticUpdate struct {
	Name        string
	Description string
	ImageURL    string
	CategoryID  int64
}

type CatalogRepository struct {
	db *database.Conn
}

func NewCatalogRepository(db *database.Conn) CatalogRepositoryInterface {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) GetBranchBySlug(ctx context.Context, slug string) (domain.Branch, error) {
	var b domain.Branch
	var fee string
	err := r.db.QueryRow(ctx, `
		SELECT id, business_id, name, address, phone, slug, delivery_fee::text, active
		FROM branches WHERE slug = $1
	`, slug).Scan(&b.ID, &b.BusinessID, &b.Name, &b.Address, &b.Phone, &b.Slug, &fee, &b.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Branch{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Branch{}, fmt.Errorf("get branch %s: %w", slug, err)
	}
	b.DeliveryFee, err = decimal.NewFromString(fee)
	if err != nil {
		return domain.Branch{}, fmt.Errorf("parse delivery fee for %s: %w", slug, err)
	}
	return b, nil
}

// BuildSnapshot assembles the static-only catalog view straight from the
// store. Price and stock are deliberately absent from every query here; they
// belong to GetQuotes.
func (r *CatalogRepository) BuildSnapshot(ctx context.Context, slug string) (domain.CatalogSnapshot, error) {
	b, err := r.GetBranchBySlug(ctx, slug)
	if err != nil {
		return domain.CatalogSnapshot{}, err
	}
	if !b.Active {
		return domain.CatalogSnapshot{}, domain.ErrNotFound
	}

	snap := domain.CatalogSnapshot{
		Branch: domain.SnapshotBranch{
			ID: b.ID, Name: b.Name, Address: b.Address, Phone: b.Phone, Slug: b.Slug,
		},
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, branch_id, name FROM categories
		WHERE branch_id = $1 ORDER BY name, id
	`, b.ID)
	if err != nil {
		return domain.CatalogSnapshot{}, fmt.Errorf("snapshot categories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.BranchID, &c.Name); err != nil {
			return domain.CatalogSnapshot{}, err
		}
		snap.Categories = append(snap.Categories, c)
	}
	if err := rows.Err(); err != nil {
		return domain.CatalogSnapshot{}, err
	}

	prows, err := r.db.Query(ctx, `
		SELECT id, category_id, name, description, image_url
		FROM products
		WHERE branch_id = $1 AND active ORDER BY id
	`, b.ID)
	if err != nil {
		return domain.CatalogSnapshot{}, fmt.Errorf("snapshot products: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var p domain.SnapshotProduct
		if err := prows.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Description, &p.ImageURL); err != nil {
			return domain.CatalogSnapshot{}, err
		}
		snap.Products = append(snap.Products, p)
	}
	if err := prows.Err(); err != nil {
		return domain.CatalogSnapshot{}, err
	}

	mrows, err := r.db.Query(ctx, `
		SELECT pm.id, pm.name, pm.active
		FROM payment_methods pm
		JOIN branch_payment_methods bpm ON bpm.payment_method_id = pm.id
		WHERE bpm.branch_id = $1 AND pm.active ORDER BY pm.id
	`, b.ID)
	if err != nil {
		return domain.CatalogSnapshot{}, fmt.Errorf("snapshot payment methods: %w", err)
	}
	defer mrows.Close()
	for mrows.Next() {
		var m domain.PaymentMethod
		if err := mrows.Scan(&m.ID, &m.Name, &m.Active); err != nil {
			return domain.CatalogSnapshot{}, err
		}
		snap.PaymentMethods = append(snap.PaymentMethods, m)
	}
	if err := mrows.Err(); err != nil {
		return domain.CatalogSnapshot{}, err
	}

	drows, err := r.db.Query(ctx, `
		SELECT dt.id, dt.name, dt.requires_address, dt.active
		FROM delivery_types dt
		JOIN branch_delivery_types bdt ON bdt.delivery_type_id = dt.id
		WHERE bdt.branch_id = $1 AND dt.active ORDER BY dt.id
	`, b.ID)
	if err != nil {
		return domain.CatalogSnapshot{}, fmt.Errorf("snapshot delivery types: %w", err)
	}
	defer drows.Close()
	for drows.Next() {
		var d domain.DeliveryType
		if err := drows.Scan(&d.ID, &d.Name, &d.RequiresAddress, &d.Active); err != nil {
			return domain.CatalogSnapshot{}, err
		}
		snap.DeliveryTypes = append(snap.DeliveryTypes, d)
	}
	if err := drows.Err(); err != nil {
		return domain.CatalogSnapshot{}, err
	}

	return snap, nil
}

// GetQuotes always hits the store: price and stock are never cached. An
// unknown or inactive branch is a NotFound, same as the snapshot path.
func (r *CatalogRepository) GetQuotes(ctx context.Context, slug string) (map[int64]domain.DynamicQuote, error) {
	b, err := r.GetBranchBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !b.Active {
		return nil, domain.ErrNotFound
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, price::text, stock
		FROM products
		WHERE branch_id = $1 AND active
	`, b.ID)
	if err != nil {
		return nil, fmt.Errorf("quotes for %s: %w", slug, err)
	}
	defer rows.Close()

	quotes := make(map[int64]domain.DynamicQuote)
	for rows.Next() {
		var id int64
		var price string
		var stock int
		if err := rows.Scan(&id, &price, &stock); err != nil {
			return nil, err
		}
		d, err := decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("parse price of product %d: %w", id, err)
		}
		quotes[id] = domain.DynamicQuote{Price: d, Stock: stock}
	}
	return quotes, rows.Err()
}

func (r *CatalogRepository) UpdateProductStatic(ctx context.Context, slug string, productID int64, in StaticUpdate) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products p SET name = $3, description = $4, image_url = $5, category_id = $6
		FROM branches b
		WHERE p.id = $2 AND p.branch_id = b.id AND b.slug = $1
	`, slug, productID, in.Name, in.Description, in.ImageURL, in.CategoryID)
	if err != nil {
		return fmt.Errorf("update product %d: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetProductPricing shares the admission path's locking discipline: the row
// is locked before the write so a concurrent admission can't read a price
// or stock value that is about to be overwritten.
func (r *CatalogRepository) SetProductPricing(ctx context.Context, slug string, productID int64, price decimal.Decimal, stock int) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id int64
	err = tx.QueryRow(ctx, `
		SELECT p.id FROM products p
		JOIN branches b ON b.id = p.branch_id
		WHERE p.id = $2 AND b.slug = $1
		FOR UPDATE OF p
	`, slug, productID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock product %d: %w", productID, err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE products SET price = $2::numeric, stock = $3 WHERE id = $1
	`, id, price.String(), stock); err != nil {
		return fmt.Errorf("set pricing of product %d: %w", productID, err)
	}
	return tx.Commit(ctx)
}

func (r *CatalogRepository) SetProductActive(ctx context.Context, slug string, productID int64, active bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE products p SET active = $3
		FROM branches b
		WHERE p.id = $2 AND p.branch_id = b.id AND b.slug = $1
	`, slug, productID, active)
	if err != nil {
		return fmt.Errorf("set active of product %d: %w", productID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
