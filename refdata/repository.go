package refdata

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound signals the requested branch or vendor does not exist.
var ErrNotFound = errors.New("refdata: not found")

// Repository provides read access to the branch and vendor catalogs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository wires a pgxpool-backed repository implementation.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetBranch fetches a branch by its primary key.
func (r *Repository) GetBranch(ctx context.Context, id string) (Branch, error) {
	const query = `
		SELECT id, name, address, active, created_at
		FROM branches
		WHERE id = $1
	`

	var b Branch
	err := r.pool.QueryRow(ctx, query, id).Scan(&b.ID, &b.Name, &b.Address, &b.Active, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Branch{}, ErrNotFound
		}
		return Branch{}, fmt.Errorf("refdata: query branch: %w", err)
	}
	return b, nil
}

// ListBranches fetches up to limit active branches ordered by name.
func (r *Repository) ListBranches(ctx context.Context, limit int) ([]Branch, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT id, name, address, active, created_at
		FROM branches
		WHERE active
		ORDER BY name ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("refdata: list branches: %w", err)
	}
	defer rows.Close()

	branches := make([]Branch, 0, limit)
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.Active, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("refdata: scan branch: %w", err)
		}
		branches = append(branches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("refdata: iterate branches: %w", err)
	}
	return branches, nil
}

// GetVendor fetches a vendor by its primary key.
func (r *Repository) GetVendor(ctx context.Context, id string) (Vendor, error) {
	const query = `
		SELECT id, name, phone, active, created_at
		FROM vendors
		WHERE id = $1
	`

	var v Vendor
	err := r.pool.QueryRow(ctx, query, id).Scan(&v.ID, &v.Name, &v.Phone, &v.Active, &v.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Vendor{}, ErrNotFound
		}
		return Vendor{}, fmt.Errorf("refdata: query vendor: %w", err)
	}
	return v, nil
}

// ListVendors fetches up to limit active vendors ordered by name.
func (r *Repository) ListVendors(ctx context.Context, limit int) ([]Vendor, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	const query = `
		SELECT id, name, phone, active, created_at
		FROM vendors
		WHERE active
		ORDER BY name ASC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("refdata: list vendors: %w", err)
	}
	defer rows.Close()

	vendors := make([]Vendor, 0, limit)
	for rows.Next() {
		var v Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.Phone, &v.Active, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("refdata: scan vendor: %w", err)
		}
		vendors = append(vendors, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("refdata: iterate vendors: %w", err)
	}
	return vendors, nil
}

// BranchExists reports whether an active branch with the id exists.
func (r *Repository) BranchExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM branches WHERE id=$1 AND active)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("refdata: branch exists: %w", err)
	}
	return exists, nil
}

// VendorExists reports whether an active vendor with the id exists.
func (r *Repository) VendorExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM vendors WHERE id=$1 AND active)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("refdata: vendor exists: %w", err)
	}
	return exists, nil
}
