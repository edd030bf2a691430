package client

import (
	"context"
	"strings"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

// Client is a pet owner registered at the clinic.
type Client struct {
	ID types.ID `json:"id"`
	types.PersonName
	DNI       types.DNI   `json:"dni"`
	Email     string      `json:"email"`
	Phone     types.Phone `json:"telefono"`
	Address   string      `json:"direccion"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// New validates the given data and builds a Client ready to persist.
func New(name types.PersonName, dni, email, phone, address string) (*Client, error) {
	details := name.Validate()
	if details == nil {
		details = map[string]string{}
	}

	parsedDNI, err := types.ParseDNI(dni)
	if err != nil {
		details["dni"] = err.Error()
	}
	parsedPhone, err := types.ParsePhone(phone)
	if err != nil {
		details["telefono"] = err.Error()
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if !types.ValidEmail(email) {
		details["email"] = "correo electronico invalido"
	}

	if len(details) > 0 {
		return nil, errors.Validation("datos de cliente invalidos", details)
	}

	now := time.Now().UTC()
	return &Client{
		ID:         types.NewID(),
		PersonName: name,
		DNI:        parsedDNI,
		Email:      email,
		Phone:      parsedPhone,
		Address:    strings.TrimSpace(address),
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Update applies new contact data after validating it.
func (c *Client) Update(name types.PersonName, email, phone, address string) error {
	details := name.Validate()
	if details == nil {
		details = map[string]string{}
	}

	parsedPhone, err := types.ParsePhone(phone)
	if err != nil {
		details["telefono"] = err.Error()
	}
	email = strings.TrimSpace(strings.ToLower(email))
	if !types.ValidEmail(email) {
		details["email"] = "correo electronico invalido"
	}

	if len(details) > 0 {
		return errors.Validation("datos de cliente invalidos", details)
	}

	c.PersonName = name
	c.Email = email
	c.Phone = parsedPhone
	c.Address = strings.TrimSpace(address)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

// ListFilter narrows client listings.
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}

// Repository persists clients.
type Repository interface {
	Create(ctx context.Context, c *Client) error
	FindByID(ctx context.Context, id types.ID) (*Client, error)
	FindByDNI(ctx context.Context, dni types.DNI) (*Client, error)
	List(ctx context.Context, filter ListFilter) ([]Client, int, error)
	Update(ctx context.Context, c *Client) error
	Delete(ctx context.Context, id types.ID) error
}
