package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

// Urgency classification assigned during triage.
type Urgency string

const (
	UrgencyNone     Urgency = "No urgente"
	UrgencyLow      Urgency = "Poco urgente"
	UrgencyModerate Urgency = "Urgente"
	UrgencyHigh     Urgency = "Muy urgente"
	UrgencyCritical Urgency = "Critico"
)

func ParseUrgency(s string) (Urgency, error) {
	switch Urgency(s) {
	case UrgencyNone, UrgencyLow, UrgencyModerate, UrgencyHigh, UrgencyCritical:
		return Urgency(s), nil
	}
	return "", errors.BadRequest("clasificacion de urgencia invalida")
}

// BodyCondition observed during triage.
type BodyCondition string

const (
	BodyVeryThin   BodyCondition = "Muy delgado"
	BodyThin       BodyCondition = "Delgado"
	BodyNormal     BodyCondition = "Normal"
	BodyOverweight BodyCondition = "Sobrepeso"
	BodyObese      BodyCondition = "Obeso"
)

func ParseBodyCondition(s string) (BodyCondition, error) {
	switch BodyCondition(s) {
	case BodyVeryThin, BodyThin, BodyNormal, BodyOverweight, BodyObese:
		return BodyCondition(s), nil
	}
	return "", errors.BadRequest("condicion corporal invalida")
}

// Vitals are the measurements taken during triage. The accepted ranges
// span every species the clinic attends.
type Vitals struct {
	WeightKg        float64 `json:"peso_mascota"`
	HeartRate       int     `json:"latido_por_minuto"`
	RespiratoryRate int     `json:"frecuencia_respiratoria"`
	Temperature     float64 `json:"temperatura"`
	PulseRate       int     `json:"frecuencia_pulso"`
	DehydrationPct  float64 `json:"porcentaje_deshidratacion"`
	HeightCm        *float64 `json:"talla,omitempty"`
	CapillaryTime   string  `json:"tiempo_capilar"`
	MucosaColor     string  `json:"color_mucosas"`
}

type vitalRange struct {
	field string
	value float64
	min   float64
	max   float64
}

// Validate returns per-field problems, nil when everything is in range.
func (v Vitals) Validate() map[string]string {
	checks := []vitalRange{
		{"peso_mascota", v.WeightKg, 0.1, 100},
		{"latido_por_minuto", float64(v.HeartRate), 40, 300},
		{"frecuencia_respiratoria", float64(v.RespiratoryRate), 10, 150},
		{"temperatura", v.Temperature, 35, 42},
		{"frecuencia_pulso", float64(v.PulseRate), 30, 250},
		{"porcentaje_deshidratacion", v.DehydrationPct, 0, 100},
	}

	details := map[string]string{}
	for _, c := range checks {
		if c.value < c.min || c.value > c.max {
			details[c.field] = fmt.Sprintf("valor fuera de rango (%.6g a %.6g)", c.min, c.max)
		}
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// Triage records the initial evaluation of an attention request. One
// triage per request.
type Triage struct {
	ID             types.ID      `json:"id"`
	RequestID      types.ID      `json:"solicitud_id"`
	VeterinarianID types.ID      `json:"veterinario_id"`
	Vitals
	BodyCondition BodyCondition `json:"condicion_corporal"`
	Urgency       Urgency       `json:"clasificacion_urgencia"`
	RecordedAt    time.Time     `json:"fecha_hora"`
}

func NewTriage(requestID, vetID types.ID, vitals Vitals, bodyCondition BodyCondition, urgency Urgency) (*Triage, error) {
	details := vitals.Validate()
	if details == nil {
		details = map[string]string{}
	}
	if requestID.IsZero() {
		details["solicitud_id"] = "la solicitud es obligatoria"
	}
	if vetID.IsZero() {
		details["veterinario_id"] = "el veterinario es obligatorio"
	}
	if len(details) > 0 {
		return nil, errors.Validation("datos de triaje invalidos", details)
	}

	vitals.CapillaryTime = strings.TrimSpace(vitals.CapillaryTime)
	vitals.MucosaColor = strings.TrimSpace(vitals.MucosaColor)

	return &Triage{
		ID:             types.NewID(),
		RequestID:      requestID,
		VeterinarianID: vetID,
		Vitals:         vitals,
		BodyCondition:  bodyCondition,
		Urgency:        urgency,
		RecordedAt:     time.Now().UTC(),
	}, nil
}
