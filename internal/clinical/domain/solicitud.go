package domain

import (
	"strings"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

// RequestStatus is the lifecycle state of an attention request.
type RequestStatus string

const (
	RequestPending    RequestStatus = "Pendiente"
	RequestInTriage   RequestStatus = "En triaje"
	RequestInProgress RequestStatus = "En atencion"
	RequestCompleted  RequestStatus = "Completada"
	RequestCancelled  RequestStatus = "Cancelada"
)

// RequestType classifies how the visit entered the clinic.
type RequestType string

const (
	RequestUrgent    RequestType = "Consulta urgente"
	RequestRegular   RequestType = "Consulta normal"
	RequestScheduled RequestType = "Servicio programado"
)

func ParseRequestType(s string) (RequestType, error) {
	if s == "" {
		return RequestRegular, nil
	}
	switch RequestType(s) {
	case RequestUrgent, RequestRegular, RequestScheduled:
		return RequestType(s), nil
	}
	return "", errors.BadRequest("tipo de solicitud invalido, debe ser Consulta urgente, Consulta normal o Servicio programado")
}

// AttentionRequest is the entry point of the clinical workflow: a pet
// arrives and waits for triage. ReceptionistID records who registered
// the arrival, when known.
type AttentionRequest struct {
	ID             types.ID      `json:"id"`
	PetID          types.ID      `json:"mascota_id"`
	ReceptionistID *types.ID     `json:"recepcionista_id,omitempty"`
	Type           RequestType   `json:"tipo_solicitud"`
	Status         RequestStatus `json:"estado"`
	Reason         string        `json:"motivo"`
	CreatedAt      time.Time     `json:"fecha_hora_creacion"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

// NewAttentionRequest opens a pending request for the given pet.
func NewAttentionRequest(petID types.ID, requestType RequestType, reason string, receptionistID *types.ID) (*AttentionRequest, error) {
	if petID.IsZero() {
		return nil, errors.Validation("datos de solicitud invalidos", map[string]string{
			"mascota_id": "la mascota es obligatoria",
		})
	}
	if requestType == "" {
		requestType = RequestRegular
	}
	now := time.Now().UTC()
	return &AttentionRequest{
		ID:             types.NewID(),
		PetID:          petID,
		ReceptionistID: receptionistID,
		Type:           requestType,
		Status:         RequestPending,
		Reason:         strings.TrimSpace(reason),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// BeginTriage moves a pending request into triage.
func (r *AttentionRequest) BeginTriage() error {
	if r.Status != RequestPending {
		return errors.Conflict("solo una solicitud pendiente puede pasar a triaje, estado actual: " + string(r.Status))
	}
	r.transition(RequestInTriage)
	return nil
}

// BeginAttention moves a triaged request into active attention.
func (r *AttentionRequest) BeginAttention() error {
	if r.Status != RequestInTriage {
		return errors.Conflict("solo una solicitud en triaje puede pasar a atencion, estado actual: " + string(r.Status))
	}
	r.transition(RequestInProgress)
	return nil
}

// Complete closes a request whose consultation finished.
func (r *AttentionRequest) Complete() error {
	if r.Status != RequestInProgress {
		return errors.Conflict("solo una solicitud en atencion puede completarse, estado actual: " + string(r.Status))
	}
	r.transition(RequestCompleted)
	return nil
}

// Cancel aborts a request that has not reached attention yet.
func (r *AttentionRequest) Cancel() error {
	switch r.Status {
	case RequestPending, RequestInTriage:
		r.transition(RequestCancelled)
		return nil
	}
	return errors.Conflict("una solicitud en atencion o cerrada no puede cancelarse, estado actual: " + string(r.Status))
}

func (r *AttentionRequest) transition(status RequestStatus) {
	r.Status = status
	r.UpdatedAt = time.Now().UTC()
}

// RequestFilter narrows attention request listings.
type RequestFilter struct {
	Status RequestStatus
	PetID  types.ID
	Limit  int
	Offset int
}
