package clients

import (
	"context"
	"fmt"
)

// Service provides client management business logic.
type Service struct {
	store Store
}

// NewService constructs a clients service.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Create registers a new active client.
func (s *Service) Create(ctx context.Context, req CreateClientRequest) (*Client, error) {
	country := req.Country
	if country == "" {
		country = "FR"
	}
	client := Client{
		CompanyID:    req.CompanyID,
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		SIRET:        req.SIRET,
		VATNumber:    req.VATNumber,
		AddressLine1: req.AddressLine1,
		AddressLine2: req.AddressLine2,
		City:         req.City,
		PostalCode:   req.PostalCode,
		Country:      country,
		IsActive:     true,
		Notes:        req.Notes,
	}
	if err := s.store.Insert(ctx, &client); err != nil {
		return nil, fmt.Errorf("create client: %w", err)
	}
	return &client, nil
}

// Update applies the provided fields.
func (s *Service) Update(ctx context.Context, id int64, req UpdateClientRequest) (*Client, error) {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get client: %w", err)
	}

	updates := make(map[string]any)
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.Phone != nil {
		updates["phone"] = *req.Phone
	}
	if req.SIRET != nil {
		updates["siret"] = *req.SIRET
	}
	if req.VATNumber != nil {
		updates["vat_number"] = *req.VATNumber
	}
	if req.AddressLine1 != nil {
		updates["address_line1"] = *req.AddressLine1
	}
	if req.AddressLine2 != nil {
		updates["address_line2"] = *req.AddressLine2
	}
	if req.City != nil {
		updates["city"] = *req.City
	}
	if req.PostalCode != nil {
		updates["postal_code"] = *req.PostalCode
	}
	if req.Country != nil {
		updates["country"] = *req.Country
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}
	if req.Notes != nil {
		updates["notes"] = *req.Notes
	}
	if len(updates) == 0 {
		return existing, nil
	}

	if err := s.store.Update(ctx, id, updates); err != nil {
		return nil, fmt.Errorf("update client: %w", err)
	}
	return s.store.Get(ctx, id)
}

// Get retrieves a client by ID.
func (s *Service) Get(ctx context.Context, id int64) (*Client, error) {
	return s.store.Get(ctx, id)
}

// List returns a paginated, company-scoped listing.
func (s *Service) List(ctx context.Context, req ListClientsRequest) ([]Client, int, error) {
	return s.store.List(ctx, req)
}

// Deactivate soft-deletes a client; documents keep referencing it.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if _, err := s.store.Get(ctx, id); err != nil {
		return fmt.Errorf("get client: %w", err)
	}
	return s.store.Deactivate(ctx, id)
}
