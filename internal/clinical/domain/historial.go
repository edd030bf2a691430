package domain

import (
	"time"

	"github.com/colitas-felices/clinic/internal/shared/types"
)

// MedicalHistory groups every clinical event of a pet. It is created
// lazily the first time something is recorded for the animal.
type MedicalHistory struct {
	ID        types.ID  `json:"id"`
	PetID     types.ID  `json:"mascota_id"`
	CreatedAt time.Time `json:"fecha_creacion"`
}

// Clinical event types appended to a history.
const (
	EventTriage       = "Triaje"
	EventConsultation = "Consulta"
	EventDiagnosis    = "Diagnostico"
	EventTreatment    = "Tratamiento"
	EventResult       = "Resultado"
	EventDischarge    = "Alta"
)

// ClinicalEvent is one entry of a pet's medical history. Reference
// points to the row that originated the entry; age and weight capture
// the pet's measurements at the moment of the event when known.
type ClinicalEvent struct {
	ID             types.ID  `json:"id"`
	HistoryID      types.ID  `json:"historial_id"`
	EventType      string    `json:"tipo_evento"`
	Description    string    `json:"descripcion"`
	Reference      *types.ID `json:"referencia,omitempty"`
	ConsultationID *types.ID `json:"consulta_id,omitempty"`
	VeterinarianID *types.ID `json:"veterinario_id,omitempty"`
	AgeMonths      *int      `json:"edad_meses,omitempty"`
	WeightKg       *float64  `json:"peso_momento,omitempty"`
	OccurredAt     time.Time `json:"fecha_hora"`
}

func NewClinicalEvent(historyID types.ID, eventType, description string, reference *types.ID) ClinicalEvent {
	return ClinicalEvent{
		ID:          types.NewID(),
		HistoryID:   historyID,
		EventType:   eventType,
		Description: description,
		Reference:   reference,
		OccurredAt:  time.Now().UTC(),
	}
}

// WithConsultation links the event to the consultation it arose from.
func (e ClinicalEvent) WithConsultation(id types.ID) ClinicalEvent {
	e.ConsultationID = &id
	return e
}

// WithVeterinarian records the acting professional.
func (e ClinicalEvent) WithVeterinarian(id types.ID) ClinicalEvent {
	e.VeterinarianID = &id
	return e
}

// WithAge captures the pet's age in months at the event.
func (e ClinicalEvent) WithAge(months int) ClinicalEvent {
	e.AgeMonths = &months
	return e
}

// WithWeight captures the pet's weight in kilograms at the event.
func (e ClinicalEvent) WithWeight(kg float64) ClinicalEvent {
	e.WeightKg = &kg
	return e
}
