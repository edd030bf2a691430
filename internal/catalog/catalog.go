package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

// Entry is a row of the simple description catalogs: animal types,
// specialties and service types all share this shape.
type Entry struct {
	ID          types.ID  `json:"id"`
	Description string    `json:"descripcion"`
	CreatedAt   time.Time `json:"created_at"`
}

func NewEntry(description string) (*Entry, error) {
	description = strings.TrimSpace(description)
	if len(description) < 3 {
		return nil, errors.Validation("descripcion invalida", map[string]string{
			"descripcion": "la descripcion debe tener al menos 3 caracteres",
		})
	}
	return &Entry{
		ID:          types.NewID(),
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

// Breed belongs to an animal type.
type Breed struct {
	ID           types.ID  `json:"id"`
	Name         string    `json:"nombre"`
	AnimalTypeID types.ID  `json:"tipo_animal_id"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewBreed(name string, animalTypeID types.ID) (*Breed, error) {
	details := map[string]string{}
	name = strings.TrimSpace(name)
	if len(name) < 2 {
		details["nombre"] = "el nombre debe tener al menos 2 caracteres"
	}
	if animalTypeID.IsZero() {
		details["tipo_animal_id"] = "el tipo de animal es obligatorio"
	}
	if len(details) > 0 {
		return nil, errors.Validation("datos de raza invalidos", details)
	}
	return &Breed{
		ID:           types.NewID(),
		Name:         name,
		AnimalTypeID: animalTypeID,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

// Service is a billable clinical service.
type Service struct {
	ID            types.ID  `json:"id"`
	Name          string    `json:"nombre"`
	Description   string    `json:"descripcion"`
	Price         float64   `json:"precio"`
	ServiceTypeID types.ID  `json:"tipo_servicio_id"`
	Active        bool      `json:"activo"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewService(name, description string, price float64, serviceTypeID types.ID) (*Service, error) {
	details := map[string]string{}
	name = strings.TrimSpace(name)
	if len(name) < 3 {
		details["nombre"] = "el nombre debe tener al menos 3 caracteres"
	}
	if price <= 0 {
		details["precio"] = "el precio debe ser mayor a cero"
	}
	if serviceTypeID.IsZero() {
		details["tipo_servicio_id"] = "el tipo de servicio es obligatorio"
	}
	if len(details) > 0 {
		return nil, errors.Validation("datos de servicio invalidos", details)
	}
	now := time.Now().UTC()
	return &Service{
		ID:            types.NewID(),
		Name:          name,
		Description:   strings.TrimSpace(description),
		Price:         price,
		ServiceTypeID: serviceTypeID,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// ChangePrice updates the price, rejecting non-positive values.
func (s *Service) ChangePrice(price float64) error {
	if price <= 0 {
		return errors.Validation("precio invalido", map[string]string{
			"precio": "el precio debe ser mayor a cero",
		})
	}
	s.Price = price
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// Severity levels recognized for a pathology.
var severities = map[string]bool{
	"Leve": true, "Moderada": true, "Grave": true, "Critica": true,
}

// Pathology is a disease catalog entry used in diagnoses.
type Pathology struct {
	ID              types.ID  `json:"id"`
	Name            string    `json:"nombre"`
	Description     string    `json:"descripcion"`
	AffectedSpecies string    `json:"especie_afectada"`
	Severity        string    `json:"gravedad"`
	Chronic         bool      `json:"es_cronica"`
	Contagious      bool      `json:"es_contagiosa"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewPathology(name, description, species, severity string, chronic, contagious bool) (*Pathology, error) {
	details := map[string]string{}
	name = strings.TrimSpace(name)
	if len(name) < 3 {
		details["nombre"] = "el nombre debe tener al menos 3 caracteres"
	}
	if !severities[severity] {
		details["gravedad"] = "la gravedad debe ser Leve, Moderada, Grave o Critica"
	}
	if len(details) > 0 {
		return nil, errors.Validation("datos de patologia invalidos", details)
	}
	return &Pathology{
		ID:              types.NewID(),
		Name:            name,
		Description:     strings.TrimSpace(description),
		AffectedSpecies: strings.TrimSpace(species),
		Severity:        severity,
		Chronic:         chronic,
		Contagious:      contagious,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// PathologyFilter narrows the disease catalog.
type PathologyFilter struct {
	Search     string
	Species    string
	Severity   string
	Chronic    *bool
	Contagious *bool
	Limit      int
	Offset     int
}

// ServiceFilter narrows service listings.
type ServiceFilter struct {
	Search        string
	ServiceTypeID types.ID
	OnlyActive    bool
	Limit         int
	Offset        int
}

// ServiceStats summarizes the service catalog.
type ServiceStats struct {
	Total        int     `json:"total"`
	Active       int     `json:"activos"`
	AveragePrice float64 `json:"precio_promedio"`
}

// Repository persists all clinic catalogs.
type Repository interface {
	CreateEntry(ctx context.Context, table string, e *Entry) error
	ListEntries(ctx context.Context, table string) ([]Entry, error)
	UpdateEntry(ctx context.Context, table string, e *Entry) error
	DeleteEntry(ctx context.Context, table string, id types.ID) error

	CreateBreed(ctx context.Context, b *Breed) error
	ListBreeds(ctx context.Context, animalTypeID types.ID) ([]Breed, error)
	UpdateBreed(ctx context.Context, b *Breed) error
	DeleteBreed(ctx context.Context, id types.ID) error

	CreateService(ctx context.Context, s *Service) error
	FindService(ctx context.Context, id types.ID) (*Service, error)
	ListServices(ctx context.Context, filter ServiceFilter) ([]Service, int, error)
	UpdateService(ctx context.Context, s *Service) error
	ServiceStats(ctx context.Context) (*ServiceStats, error)

	CreatePathology(ctx context.Context, p *Pathology) error
	FindPathology(ctx context.Context, id types.ID) (*Pathology, error)
	ListPathologies(ctx context.Context, filter PathologyFilter) ([]Pathology, int, error)
	UpdatePathology(ctx context.Context, p *Pathology) error
	DeletePathology(ctx context.Context, id types.ID) error
}

// Tables for the simple catalogs. Only these names reach the SQL layer.
const (
	TableAnimalTypes  = "tipos_animal"
	TableSpecialties  = "especialidades"
	TableServiceTypes = "tipos_servicio"
)
