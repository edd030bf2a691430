package user

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/colitas-felices/clinic/internal/shared/auth"
	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
	"github.com/colitas-felices/clinic/internal/staff"
)

// Status of a user account.
type Status string

const (
	StatusActive   Status = "Activo"
	StatusInactive Status = "Inactivo"
)

// User is a login account. Every account carries exactly one staff
// profile of the matching role.
type User struct {
	ID           types.ID  `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"tipo"`
	Status       Status    `json:"estado"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

const minPasswordLength = 6

// New validates credentials and builds an active account.
func New(username, password, role string) (*User, error) {
	details := map[string]string{}

	username = strings.TrimSpace(strings.ToLower(username))
	if len(username) < 4 {
		details["username"] = "el usuario debe tener al menos 4 caracteres"
	}
	if len(password) < minPasswordLength {
		details["password"] = "la contrasena debe tener al menos 6 caracteres"
	}
	switch role {
	case auth.RoleVeterinario, auth.RoleRecepcionista, auth.RoleAdministrador:
	default:
		details["tipo"] = "tipo de usuario invalido"
	}

	if len(details) > 0 {
		return nil, errors.Validation("datos de usuario invalidos", details)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.Internal(err)
	}

	now := time.Now().UTC()
	return &User{
		ID:           types.NewID(),
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
		Status:       StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// SetPassword replaces the stored hash after validating the new value.
func (u *User) SetPassword(password string) error {
	if len(password) < minPasswordLength {
		return errors.Validation("contrasena invalida", map[string]string{
			"password": "la contrasena debe tener al menos 6 caracteres",
		})
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return errors.Internal(err)
	}
	u.PasswordHash = string(hash)
	u.UpdatedAt = time.Now().UTC()
	return nil
}

func (u *User) Activate() {
	u.Status = StatusActive
	u.UpdatedAt = time.Now().UTC()
}

func (u *User) Deactivate() {
	u.Status = StatusInactive
	u.UpdatedAt = time.Now().UTC()
}

// ListFilter narrows account listings.
type ListFilter struct {
	Search string
	Role   string
	Status Status
	Limit  int
	Offset int
}

// Stats summarizes accounts by role and status.
type Stats struct {
	Total    int            `json:"total"`
	ByRole   map[string]int `json:"por_tipo"`
	ByStatus map[string]int `json:"por_estado"`
}

// Repository persists accounts together with their staff profiles.
type Repository interface {
	CreateWithVeterinarian(ctx context.Context, u *User, v *staff.Veterinarian) error
	CreateWithReceptionist(ctx context.Context, u *User, rec *staff.Receptionist) error
	CreateWithAdministrator(ctx context.Context, u *User, adm *staff.Administrator) error

	FindByID(ctx context.Context, id types.ID) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	List(ctx context.Context, filter ListFilter) ([]User, int, error)
	UpdateStatus(ctx context.Context, u *User) error
	UpdatePassword(ctx context.Context, u *User) error
	Stats(ctx context.Context) (*Stats, error)
}
