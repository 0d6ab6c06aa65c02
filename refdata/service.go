package refdata

import "context"

// CatalogReader abstracts repository operations for the service.
type CatalogReader interface {
	GetBranch(ctx context.Context, id string) (Branch, error)
	ListBranches(ctx context.Context, limit int) ([]Branch, error)
	GetVendor(ctx context.Context, id string) (Vendor, error)
	ListVendors(ctx context.Context, limit int) ([]Vendor, error)
	BranchExists(ctx context.Context, id string) (bool, error)
	VendorExists(ctx context.Context, id string) (bool, error)
}

// Service exposes read-only access to the organizational catalogs.
type Service struct {
	repo CatalogReader
}

// NewService builds a Service using the provided repository.
func NewService(repo CatalogReader) *Service {
	return &Service{repo: repo}
}

// GetBranch returns the branch for the given identifier.
func (s *Service) GetBranch(ctx context.Context, id string) (Branch, error) {
	return s.repo.GetBranch(ctx, id)
}

// ListBranches returns up to limit active branches.
func (s *Service) ListBranches(ctx context.Context, limit int) ([]Branch, error) {
	return s.repo.ListBranches(ctx, limit)
}

// GetVendor returns the vendor for the given identifier.
func (s *Service) GetVendor(ctx context.Context, id string) (Vendor, error) {
	return s.repo.GetVendor(ctx, id)
}

// ListVendors returns up to limit active vendors.
func (s *Service) ListVendors(ctx context.Context, limit int) ([]Vendor, error) {
	return s.repo.ListVendors(ctx, limit)
}

// BranchExists reports whether the branch id references an active branch.
func (s *Service) BranchExists(ctx context.Context, id string) (bool, error) {
	return s.repo.BranchExists(ctx, id)
}

// VendorExists reports whether the vendor id references an active vendor.
func (s *Service) VendorExists(ctx context.Context, id string) (bool, error) {
	return s.repo.VendorExists(ctx, id)
}
