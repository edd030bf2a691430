package pet

import (
	"context"
	"strings"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

// Pet is an animal attended by the clinic. Ownership is kept in a
// separate link table so a pet can change hands or belong to more than
// one client.
type Pet struct {
	ID           types.ID     `json:"id"`
	Name         string       `json:"nombre"`
	Sex          types.Gender `json:"sexo"`
	Color        string       `json:"color"`
	AgeYears     int          `json:"edad_anios"`
	AgeMonths    int          `json:"edad_meses"`
	Sterilized   bool         `json:"esterilizado"`
	ImageURL     *string      `json:"imagen,omitempty"`
	BreedID      types.ID     `json:"raza_id"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// New validates the given data and builds a Pet ready to persist.
func New(name, sex, color string, ageYears, ageMonths int, sterilized bool, imageURL *string, breedID types.ID) (*Pet, error) {
	details := map[string]string{}

	name = strings.TrimSpace(name)
	if len(name) < 2 {
		details["nombre"] = "el nombre debe tener al menos 2 caracteres"
	}
	parsedSex, err := types.ParseGender(sex)
	if err != nil {
		details["sexo"] = err.Error()
	}
	if ageYears < 0 || ageYears > 50 {
		details["edad_anios"] = "la edad en anios debe estar entre 0 y 50"
	}
	if ageMonths < 0 || ageMonths > 11 {
		details["edad_meses"] = "la edad en meses debe estar entre 0 y 11"
	}
	if breedID.IsZero() {
		details["raza_id"] = "la raza es obligatoria"
	}

	if len(details) > 0 {
		return nil, errors.Validation("datos de mascota invalidos", details)
	}

	now := time.Now().UTC()
	return &Pet{
		ID:         types.NewID(),
		Name:       name,
		Sex:        parsedSex,
		Color:      strings.TrimSpace(color),
		AgeYears:   ageYears,
		AgeMonths:  ageMonths,
		Sterilized: sterilized,
		ImageURL:   imageURL,
		BreedID:    breedID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Update applies new data after validating it. Sex is immutable.
func (p *Pet) Update(name, color string, ageYears, ageMonths int, sterilized bool, imageURL *string, breedID types.ID) error {
	details := map[string]string{}

	name = strings.TrimSpace(name)
	if len(name) < 2 {
		details["nombre"] = "el nombre debe tener al menos 2 caracteres"
	}
	if ageYears < 0 || ageYears > 50 {
		details["edad_anios"] = "la edad en anios debe estar entre 0 y 50"
	}
	if ageMonths < 0 || ageMonths > 11 {
		details["edad_meses"] = "la edad en meses debe estar entre 0 y 11"
	}
	if breedID.IsZero() {
		details["raza_id"] = "la raza es obligatoria"
	}

	if len(details) > 0 {
		return errors.Validation("datos de mascota invalidos", details)
	}

	p.Name = name
	p.Color = strings.TrimSpace(color)
	p.AgeYears = ageYears
	p.AgeMonths = ageMonths
	p.Sterilized = sterilized
	p.ImageURL = imageURL
	p.BreedID = breedID
	p.UpdatedAt = time.Now().UTC()
	return nil
}

// ListFilter narrows pet listings.
type ListFilter struct {
	Search   string
	ClientID types.ID
	BreedID  types.ID
	Limit    int
	Offset   int
}

// Repository persists pets and their ownership links.
type Repository interface {
	Create(ctx context.Context, p *Pet, ownerID types.ID) error
	FindByID(ctx context.Context, id types.ID) (*Pet, error)
	List(ctx context.Context, filter ListFilter) ([]Pet, int, error)
	Update(ctx context.Context, p *Pet) error
	Delete(ctx context.Context, id types.ID) error

	Owners(ctx context.Context, petID types.ID) ([]types.ID, error)
	LinkOwner(ctx context.Context, petID, clientID types.ID) error
	UnlinkOwner(ctx context.Context, petID, clientID types.ID) error
	TransferOwner(ctx context.Context, petID, fromClientID, toClientID types.ID) error
}
