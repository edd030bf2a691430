package domain

import (
	"strings"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

// OrderStatus is the lifecycle state of a requested service.
type OrderStatus string

const (
	OrderRequested  OrderStatus = "Solicitado"
	OrderScheduled  OrderStatus = "Citado"
	OrderInProgress OrderStatus = "En proceso"
	OrderCompleted  OrderStatus = "Completado"
	OrderCancelled  OrderStatus = "Cancelado"
)

// OrderPriority of a requested service.
type OrderPriority string

const (
	PriorityUrgent      OrderPriority = "Urgente"
	PriorityNormal      OrderPriority = "Normal"
	PrioritySchedulable OrderPriority = "Programable"
)

func ParsePriority(s string) (OrderPriority, error) {
	if s == "" {
		return PriorityNormal, nil
	}
	switch OrderPriority(s) {
	case PriorityUrgent, PriorityNormal, PrioritySchedulable:
		return OrderPriority(s), nil
	}
	return "", errors.BadRequest("prioridad invalida, debe ser Urgente, Normal o Programable")
}

// ServiceOrder is a service requested during a consultation, e.g. a lab
// test or an imaging study.
type ServiceOrder struct {
	ID             types.ID      `json:"id"`
	ConsultationID types.ID      `json:"consulta_id"`
	ServiceID      types.ID      `json:"servicio_id"`
	Status         OrderStatus   `json:"estado"`
	Priority       OrderPriority `json:"prioridad"`
	Comment        string        `json:"comentario"`
	CreatedAt      time.Time     `json:"fecha_creacion"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

func NewServiceOrder(consultationID, serviceID types.ID, priority OrderPriority, comment string) (*ServiceOrder, error) {
	details := map[string]string{}
	if consultationID.IsZero() {
		details["consulta_id"] = "la consulta es obligatoria"
	}
	if serviceID.IsZero() {
		details["servicio_id"] = "el servicio es obligatorio"
	}
	if len(details) > 0 {
		return nil, errors.Validation("datos de servicio solicitado invalidos", details)
	}
	now := time.Now().UTC()
	return &ServiceOrder{
		ID:             types.NewID(),
		ConsultationID: consultationID,
		ServiceID:      serviceID,
		Status:         OrderRequested,
		Priority:       priority,
		Comment:        strings.TrimSpace(comment),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Schedule marks the order as cited once an appointment exists.
func (o *ServiceOrder) Schedule() error {
	if o.Status != OrderRequested {
		return errors.Conflict("solo un servicio solicitado puede citarse, estado actual: " + string(o.Status))
	}
	o.transition(OrderScheduled)
	return nil
}

// Start moves a cited order into processing once its appointment is
// attended.
func (o *ServiceOrder) Start() error {
	if o.Status != OrderScheduled {
		return errors.Conflict("solo un servicio citado puede pasar a proceso, estado actual: " + string(o.Status))
	}
	o.transition(OrderInProgress)
	return nil
}

// Complete closes the order after its result is registered. Walk-in
// services may complete without ever having an appointment.
func (o *ServiceOrder) Complete() error {
	switch o.Status {
	case OrderRequested, OrderScheduled, OrderInProgress:
		o.transition(OrderCompleted)
		return nil
	}
	return errors.Conflict("el servicio ya fue cerrado, estado actual: " + string(o.Status))
}

// Cancel aborts an order that has not completed.
func (o *ServiceOrder) Cancel() error {
	switch o.Status {
	case OrderRequested, OrderScheduled, OrderInProgress:
		o.transition(OrderCancelled)
		return nil
	}
	return errors.Conflict("el servicio ya fue cerrado, estado actual: " + string(o.Status))
}

func (o *ServiceOrder) transition(status OrderStatus) {
	o.Status = status
	o.UpdatedAt = time.Now().UTC()
}

// AppointmentStatus is the lifecycle state of a scheduled appointment.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "Programada"
	AppointmentAttended  AppointmentStatus = "Atendida"
	AppointmentCancelled AppointmentStatus = "Cancelada"
)

// Appointment schedules a requested service with a veterinarian. One
// appointment per order.
type Appointment struct {
	ID             types.ID          `json:"id"`
	ServiceOrderID types.ID          `json:"servicio_solicitado_id"`
	VeterinarianID types.ID          `json:"veterinario_id"`
	Date           time.Time         `json:"fecha"`
	Time           string            `json:"hora"`
	Status         AppointmentStatus `json:"estado"`
	RequiresFast   bool              `json:"requiere_ayuno"`
	Observations   string            `json:"observaciones"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func NewAppointment(orderID, vetID types.ID, date time.Time, timeOfDay string, requiresFast bool, observations string) (*Appointment, error) {
	details := map[string]string{}
	if orderID.IsZero() {
		details["servicio_solicitado_id"] = "el servicio solicitado es obligatorio"
	}
	if vetID.IsZero() {
		details["veterinario_id"] = "el veterinario es obligatorio"
	}
	if date.IsZero() || date.Before(startOfToday()) {
		details["fecha"] = "la fecha no puede estar en el pasado"
	}
	if _, err := time.Parse("15:04", timeOfDay); err != nil {
		details["hora"] = "hora invalida, se espera HH:MM"
	}
	if len(details) > 0 {
		return nil, errors.Validation("datos de cita invalidos", details)
	}
	now := time.Now().UTC()
	return &Appointment{
		ID:             types.NewID(),
		ServiceOrderID: orderID,
		VeterinarianID: vetID,
		Date:           date,
		Time:           timeOfDay,
		Status:         AppointmentScheduled,
		RequiresFast:   requiresFast,
		Observations:   strings.TrimSpace(observations),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func startOfToday() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

// MarkAttended closes the appointment as fulfilled.
func (a *Appointment) MarkAttended() error {
	if a.Status != AppointmentScheduled {
		return errors.Conflict("solo una cita programada puede marcarse atendida, estado actual: " + string(a.Status))
	}
	a.Status = AppointmentAttended
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Cancel aborts a scheduled appointment.
func (a *Appointment) Cancel() error {
	if a.Status != AppointmentScheduled {
		return errors.Conflict("solo una cita programada puede cancelarse, estado actual: " + string(a.Status))
	}
	a.Status = AppointmentCancelled
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// ServiceResult is the outcome of a requested service, recorded by a
// vet or imported from the external laboratory.
type ServiceResult struct {
	ID             types.ID  `json:"id"`
	ServiceOrderID types.ID  `json:"servicio_solicitado_id"`
	VeterinarianID *types.ID `json:"veterinario_id,omitempty"`
	Description    string    `json:"descripcion"`
	FileURL        *string   `json:"archivo,omitempty"`
	Origin         string    `json:"origen"`
	ExternalRef    *string   `json:"referencia_externa,omitempty"`
	PerformedAt    time.Time `json:"fecha_realizacion"`
}

const (
	ResultOriginInternal = "Interno"
	ResultOriginLab      = "Laboratorio externo"
)

func NewServiceResult(orderID types.ID, vetID *types.ID, description string, fileURL *string) (*ServiceResult, error) {
	description = strings.TrimSpace(description)
	if len(description) < 5 {
		return nil, errors.Validation("datos de resultado invalidos", map[string]string{
			"descripcion": "la descripcion debe tener al menos 5 caracteres",
		})
	}
	return &ServiceResult{
		ID:             types.NewID(),
		ServiceOrderID: orderID,
		VeterinarianID: vetID,
		Description:    description,
		FileURL:        fileURL,
		Origin:         ResultOriginInternal,
		PerformedAt:    time.Now().UTC(),
	}, nil
}

// NewLabResult builds a result imported from the external laboratory
// system, carrying the upstream reference for traceability.
func NewLabResult(orderID types.ID, description, externalRef string, performedAt time.Time) *ServiceResult {
	return &ServiceResult{
		ID:             types.NewID(),
		ServiceOrderID: orderID,
		Description:    strings.TrimSpace(description),
		Origin:         ResultOriginLab,
		ExternalRef:    &externalRef,
		PerformedAt:    performedAt,
	}
}
