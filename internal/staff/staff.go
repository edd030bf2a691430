package staff

import (
	"context"
	"strings"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

// Shift is a work schedule block.
type Shift string

const (
	ShiftMorning   Shift = "Mañana"
	ShiftAfternoon Shift = "Tarde"
	ShiftNight     Shift = "Noche"
)

func ParseShift(s string) (Shift, error) {
	switch Shift(s) {
	case ShiftMorning, ShiftAfternoon, ShiftNight:
		return Shift(s), nil
	}
	return "", errors.BadRequest("turno invalido, debe ser Mañana, Tarde o Noche")
}

// Availability reflects whether a veterinarian can take a patient right
// now. It flips to Busy while a consultation is open.
type Availability string

const (
	AvailabilityFree Availability = "Libre"
	AvailabilityBusy Availability = "Ocupado"
)

// Person groups the identity fields shared by every staff profile.
type Person struct {
	types.PersonName
	DNI       types.DNI    `json:"dni"`
	Email     string       `json:"email"`
	Phone     types.Phone  `json:"telefono"`
	BirthDate time.Time    `json:"fecha_nacimiento"`
	Gender    types.Gender `json:"genero"`
}

// NewPerson validates identity data common to all staff profiles.
func NewPerson(name types.PersonName, dni, email, phone, gender string, birthDate time.Time) (Person, error) {
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
	parsedGender, err := types.ParseGender(gender)
	if err != nil {
		details["genero"] = err.Error()
	}
	if birthDate.IsZero() || birthDate.After(time.Now().AddDate(-18, 0, 0)) {
		details["fecha_nacimiento"] = "el personal debe ser mayor de edad"
	}

	if len(details) > 0 {
		return Person{}, errors.Validation("datos de personal invalidos", details)
	}

	return Person{
		PersonName: name,
		DNI:        parsedDNI,
		Email:      email,
		Phone:      parsedPhone,
		BirthDate:  birthDate,
		Gender:     parsedGender,
	}, nil
}

// Veterinarian is the clinical profile linked 1:1 to a user account.
type Veterinarian struct {
	ID     types.ID `json:"id"`
	UserID types.ID `json:"usuario_id"`
	Person
	CMVPCode     string       `json:"codigo_cmvp"`
	SpecialtyID  types.ID     `json:"especialidad_id"`
	Shift        Shift        `json:"turno"`
	Availability Availability `json:"disposicion"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func NewVeterinarian(userID types.ID, person Person, cmvpCode string, specialtyID types.ID, shift Shift) (*Veterinarian, error) {
	details := map[string]string{}
	cmvpCode = strings.TrimSpace(strings.ToUpper(cmvpCode))
	if len(cmvpCode) < 4 {
		details["codigo_cmvp"] = "el codigo CMVP debe tener al menos 4 caracteres"
	}
	if specialtyID.IsZero() {
		details["especialidad_id"] = "la especialidad es obligatoria"
	}
	if len(details) > 0 {
		return nil, errors.Validation("datos de veterinario invalidos", details)
	}

	now := time.Now().UTC()
	return &Veterinarian{
		ID:           types.NewID(),
		UserID:       userID,
		Person:       person,
		CMVPCode:     cmvpCode,
		SpecialtyID:  specialtyID,
		Shift:        shift,
		Availability: AvailabilityFree,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Receptionist is the front desk profile linked 1:1 to a user account.
type Receptionist struct {
	ID     types.ID `json:"id"`
	UserID types.ID `json:"usuario_id"`
	Person
	Shift     Shift     `json:"turno"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewReceptionist(userID types.ID, person Person, shift Shift) *Receptionist {
	now := time.Now().UTC()
	return &Receptionist{
		ID:        types.NewID(),
		UserID:    userID,
		Person:    person,
		Shift:     shift,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Administrator is the management profile linked 1:1 to a user account.
type Administrator struct {
	ID     types.ID `json:"id"`
	UserID types.ID `json:"usuario_id"`
	Person
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewAdministrator(userID types.ID, person Person) *Administrator {
	now := time.Now().UTC()
	return &Administrator{
		ID:        types.NewID(),
		UserID:    userID,
		Person:    person,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// VetFilter narrows veterinarian listings.
type VetFilter struct {
	Search      string
	SpecialtyID types.ID
	Shift       Shift
	OnlyFree    bool
	Limit       int
	Offset      int
}

// Repository persists staff profiles. Creation happens through the user
// module so the account and its profile land in one transaction.
type Repository interface {
	FindVeterinarian(ctx context.Context, id types.ID) (*Veterinarian, error)
	FindVeterinarianByUser(ctx context.Context, userID types.ID) (*Veterinarian, error)
	FindVeterinarianByCMVP(ctx context.Context, code string) (*Veterinarian, error)
	ListVeterinarians(ctx context.Context, filter VetFilter) ([]Veterinarian, int, error)
	UpdateVeterinarian(ctx context.Context, v *Veterinarian) error
	SetAvailability(ctx context.Context, id types.ID, availability Availability) error

	FindReceptionist(ctx context.Context, id types.ID) (*Receptionist, error)
	FindReceptionistByUser(ctx context.Context, userID types.ID) (*Receptionist, error)
	ListReceptionists(ctx context.Context, search string, limit, offset int) ([]Receptionist, int, error)
	UpdateReceptionist(ctx context.Context, rec *Receptionist) error

	FindAdministrator(ctx context.Context, id types.ID) (*Administrator, error)
	FindAdministratorByUser(ctx context.Context, userID types.ID) (*Administrator, error)
	ListAdministrators(ctx context.Context, search string, limit, offset int) ([]Administrator, int, error)
	UpdateAdministrator(ctx context.Context, adm *Administrator) error
}
