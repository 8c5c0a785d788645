package usecase

import (
	"fmt"

	"github.com/hostpulse/hostpulse/internal/domain"
)

// CustomerService answers plan-capability questions for the customer API.
type CustomerService struct {
	Catalog domain.CustomerCatalog
}

// NewCustomerService constructs a CustomerService.
func NewCustomerService(catalog domain.CustomerCatalog) CustomerService {
	return CustomerService{Catalog: catalog}
}

// LatencyAccess loads the capability row and reports whether the latency
// API is open to the customer: the account must be active, not paused, and
// carry the latency tracking capability.
func (s CustomerService) LatencyAccess(ctx domain.Context, id domain.CustomerID) (domain.CustomerCapabilities, error) {
	caps, err := s.Catalog.CapabilitiesByID(ctx, id)
	if err != nil {
		return domain.CustomerCapabilities{}, err
	}
	if !caps.LatencyAllowed() {
		return caps, fmt.Errorf("op=customer.latency_access: customer %d: %w", id, domain.ErrUnauthorized)
	}
	return caps, nil
}
