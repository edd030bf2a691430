package domain

import (
	"strings"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

// Consultation is the medical attention derived from a triage. One
// consultation per triage.
type Consultation struct {
	ID             types.ID   `json:"id"`
	TriageID       types.ID   `json:"triaje_id"`
	VeterinarianID types.ID   `json:"veterinario_id"`
	Reason         string     `json:"motivo"`
	Type           string     `json:"tipo_consulta"`
	Observations   string     `json:"observaciones"`
	StartedAt      time.Time  `json:"fecha_hora"`
	FinishedAt     *time.Time `json:"finalizada_en,omitempty"`
}

func NewConsultation(triageID, vetID types.ID, reason, consultationType string) (*Consultation, error) {
	details := map[string]string{}
	reason = strings.TrimSpace(reason)
	if len(reason) < 5 {
		details["motivo"] = "el motivo debe tener al menos 5 caracteres"
	}
	if triageID.IsZero() {
		details["triaje_id"] = "el triaje es obligatorio"
	}
	if vetID.IsZero() {
		details["veterinario_id"] = "el veterinario es obligatorio"
	}
	if len(details) > 0 {
		return nil, errors.Validation("datos de consulta invalidos", details)
	}

	if consultationType == "" {
		consultationType = "General"
	}
	return &Consultation{
		ID:             types.NewID(),
		TriageID:       triageID,
		VeterinarianID: vetID,
		Reason:         reason,
		Type:           consultationType,
		StartedAt:      time.Now().UTC(),
	}, nil
}

// Open reports whether the consultation is still in progress.
func (c *Consultation) Open() bool {
	return c.FinishedAt == nil
}

// Finish closes the consultation.
func (c *Consultation) Finish(observations string) error {
	if !c.Open() {
		return errors.Conflict("la consulta ya fue finalizada")
	}
	now := time.Now().UTC()
	c.FinishedAt = &now
	if observations = strings.TrimSpace(observations); observations != "" {
		c.Observations = observations
	}
	return nil
}

// DiagnosisType distinguishes a presumptive call from a confirmed or
// ruled out one.
type DiagnosisType string

const (
	DiagnosisPresumptive DiagnosisType = "Presuntivo"
	DiagnosisConfirmed   DiagnosisType = "Confirmado"
	DiagnosisRuledOut    DiagnosisType = "Descartado"
)

func ParseDiagnosisType(s string) (DiagnosisType, error) {
	if s == "" {
		return DiagnosisPresumptive, nil
	}
	switch DiagnosisType(s) {
	case DiagnosisPresumptive, DiagnosisConfirmed, DiagnosisRuledOut:
		return DiagnosisType(s), nil
	}
	return "", errors.BadRequest("tipo de diagnostico invalido, debe ser Presuntivo, Confirmado o Descartado")
}

// PathologyState tracks the disease course after diagnosis.
type PathologyState string

const (
	PathologyActive     PathologyState = "Activa"
	PathologyControlled PathologyState = "Controlada"
	PathologyCured      PathologyState = "Curada"
	PathologyMonitored  PathologyState = "En seguimiento"
)

func ParsePathologyState(s string) (PathologyState, error) {
	if s == "" {
		return PathologyActive, nil
	}
	switch PathologyState(s) {
	case PathologyActive, PathologyControlled, PathologyCured, PathologyMonitored:
		return PathologyState(s), nil
	}
	return "", errors.BadRequest("estado de patologia invalido, debe ser Activa, Controlada, Curada o En seguimiento")
}

// Diagnosis links a consultation to a cataloged pathology.
type Diagnosis struct {
	ID             types.ID       `json:"id"`
	ConsultationID types.ID       `json:"consulta_id"`
	PathologyID    types.ID       `json:"patologia_id"`
	Type           DiagnosisType  `json:"tipo_diagnostico"`
	PathologyState PathologyState `json:"estado_patologia"`
	Detail         string         `json:"detalle"`
	RecordedAt     time.Time      `json:"fecha_hora"`
}

func NewDiagnosis(consultationID, pathologyID types.ID, diagType DiagnosisType, state PathologyState, detail string) (*Diagnosis, error) {
	details := map[string]string{}
	if consultationID.IsZero() {
		details["consulta_id"] = "la consulta es obligatoria"
	}
	if pathologyID.IsZero() {
		details["patologia_id"] = "la patologia es obligatoria"
	}
	if len(details) > 0 {
		return nil, errors.Validation("datos de diagnostico invalidos", details)
	}
	return &Diagnosis{
		ID:             types.NewID(),
		ConsultationID: consultationID,
		PathologyID:    pathologyID,
		Type:           diagType,
		PathologyState: state,
		Detail:         strings.TrimSpace(detail),
		RecordedAt:     time.Now().UTC(),
	}, nil
}

// TreatmentType classifies the prescribed course.
type TreatmentType string

const (
	TreatmentMedication TreatmentType = "Medicamentoso"
	TreatmentSurgical   TreatmentType = "Quirurgico"
	TreatmentTherapy    TreatmentType = "Terapeutico"
	TreatmentPreventive TreatmentType = "Preventivo"
)

func ParseTreatmentType(s string) (TreatmentType, error) {
	switch TreatmentType(s) {
	case TreatmentMedication, TreatmentSurgical, TreatmentTherapy, TreatmentPreventive:
		return TreatmentType(s), nil
	}
	return "", errors.BadRequest("tipo de tratamiento invalido, debe ser Medicamentoso, Quirurgico, Terapeutico o Preventivo")
}

// TreatmentEfficacy rates how the pet responded. Empty until the vet
// evaluates the course.
type TreatmentEfficacy string

const (
	EfficacyVeryGood TreatmentEfficacy = "Muy buena"
	EfficacyGood     TreatmentEfficacy = "Buena"
	EfficacyFair     TreatmentEfficacy = "Regular"
	EfficacyPoor     TreatmentEfficacy = "Mala"
)

func ParseEfficacy(s string) (TreatmentEfficacy, error) {
	if s == "" {
		return "", nil
	}
	switch TreatmentEfficacy(s) {
	case EfficacyVeryGood, EfficacyGood, EfficacyFair, EfficacyPoor:
		return TreatmentEfficacy(s), nil
	}
	return "", errors.BadRequest("eficacia invalida, debe ser Muy buena, Buena, Regular o Mala")
}

// Treatment is a prescription attached to a consultation, optionally
// tied to the pathology it addresses.
type Treatment struct {
	ID             types.ID          `json:"id"`
	ConsultationID types.ID          `json:"consulta_id"`
	PathologyID    *types.ID         `json:"patologia_id,omitempty"`
	Type           TreatmentType     `json:"tipo_tratamiento"`
	Efficacy       TreatmentEfficacy `json:"eficacia_tratamiento,omitempty"`
	Description    string            `json:"descripcion"`
	DurationDays   int               `json:"duracion_dias"`
	StartDate      time.Time         `json:"fecha_inicio"`
	Observations   string            `json:"observaciones"`
	RecordedAt     time.Time         `json:"fecha_hora"`
}

func NewTreatment(consultationID types.ID, treatmentType TreatmentType, description string, durationDays int, startDate time.Time, pathologyID *types.ID, efficacy TreatmentEfficacy, observations string) (*Treatment, error) {
	details := map[string]string{}
	description = strings.TrimSpace(description)
	if len(description) < 5 {
		details["descripcion"] = "la descripcion debe tener al menos 5 caracteres"
	}
	if treatmentType == "" {
		details["tipo_tratamiento"] = "el tipo de tratamiento es obligatorio"
	}
	if durationDays <= 0 {
		details["duracion_dias"] = "la duracion debe ser al menos un dia"
	}
	if consultationID.IsZero() {
		details["consulta_id"] = "la consulta es obligatoria"
	}
	if startDate.IsZero() {
		details["fecha_inicio"] = "la fecha de inicio es obligatoria"
	}
	if len(details) > 0 {
		return nil, errors.Validation("datos de tratamiento invalidos", details)
	}
	return &Treatment{
		ID:             types.NewID(),
		ConsultationID: consultationID,
		PathologyID:    pathologyID,
		Type:           treatmentType,
		Efficacy:       efficacy,
		Description:    description,
		DurationDays:   durationDays,
		StartDate:      startDate,
		Observations:   strings.TrimSpace(observations),
		RecordedAt:     time.Now().UTC(),
	}, nil
}
