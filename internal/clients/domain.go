package clients

import "time"

// Client is a billable customer of the company.
type Client struct {
	ID           int64     `json:"id" db:"id"`
	CompanyID    int64     `json:"company_id" db:"company_id"`
	Name         string    `json:"name" db:"name"`
	Email        *string   `json:"email,omitempty" db:"email"`
	Phone        *string   `json:"phone,omitempty" db:"phone"`
	SIRET        *string   `json:"siret,omitempty" db:"siret"`
	VATNumber    *string   `json:"vat_number,omitempty" db:"vat_number"`
	AddressLine1 *string   `json:"address_line1,omitempty" db:"address_line1"`
	AddressLine2 *string   `json:"address_line2,omitempty" db:"address_line2"`
	City         *string   `json:"city,omitempty" db:"city"`
	PostalCode   *string   `json:"postal_code,omitempty" db:"postal_code"`
	Country      string    `json:"country" db:"country"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	Notes        *string   `json:"notes,omitempty" db:"notes"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// CreateClientRequest captures the fields accepted at creation.
type CreateClientRequest struct {
	CompanyID    int64   `json:"company_id" validate:"required,gt=0"`
	Name         string  `json:"name" validate:"required,max=200"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,max=30"`
	SIRET        *string `json:"siret,omitempty" validate:"omitempty,len=14"`
	VATNumber    *string `json:"vat_number,omitempty" validate:"omitempty,max=20"`
	AddressLine1 *string `json:"address_line1,omitempty" validate:"omitempty,max=200"`
	AddressLine2 *string `json:"address_line2,omitempty" validate:"omitempty,max=200"`
	City         *string `json:"city,omitempty" validate:"omitempty,max=100"`
	PostalCode   *string `json:"postal_code,omitempty" validate:"omitempty,max=12"`
	Country      string  `json:"country" validate:"omitempty,len=2"`
	Notes        *string `json:"notes,omitempty"`
}

// UpdateClientRequest updates only the provided fields.
type UpdateClientRequest struct {
	Name         *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Email        *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone        *string `json:"phone,omitempty" validate:"omitempty,max=30"`
	SIRET        *string `json:"siret,omitempty" validate:"omitempty,len=14"`
	VATNumber    *string `json:"vat_number,omitempty" validate:"omitempty,max=20"`
	AddressLine1 *string `json:"address_line1,omitempty" validate:"omitempty,max=200"`
	AddressLine2 *string `json:"address_line2,omitempty" validate:"omitempty,max=200"`
	City         *string `json:"city,omitempty" validate:"omitempty,max=100"`
	PostalCode   *string `json:"postal_code,omitempty" validate:"omitempty,max=12"`
	Country      *string `json:"country,omitempty" validate:"omitempty,len=2"`
	IsActive     *bool   `json:"is_active,omitempty"`
	Notes        *string `json:"notes,omitempty"`
}

// ListClientsRequest filters and paginates the listing.
type ListClientsRequest struct {
	CompanyID int64   `json:"company_id" validate:"required,gt=0"`
	Search    *string `json:"search,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
	Limit     int     `json:"limit" validate:"gte=0,lte=1000"`
	Offset    int     `json:"offset" validate:"gte=0"`
}
