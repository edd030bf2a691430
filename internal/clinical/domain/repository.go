package domain

import (
	"context"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/types"
)

// AppointmentFilter narrows the agenda.
type AppointmentFilter struct {
	Date           time.Time
	VeterinarianID types.ID
	Status         AppointmentStatus
	Limit          int
	Offset         int
}

// WorkflowStats summarizes the clinical pipeline for the dashboard.
type WorkflowStats struct {
	RequestsByStatus   map[string]int `json:"solicitudes_por_estado"`
	TriagesByUrgency   map[string]int `json:"triajes_por_urgencia"`
	OpenConsultations  int            `json:"consultas_abiertas"`
	ConsultationsToday int            `json:"consultas_hoy"`
	PendingOrders      int            `json:"servicios_pendientes"`
	AppointmentsToday  int            `json:"citas_hoy"`
}

// Repository persists the clinical workflow. Operations that span
// several tables (consultation opening, finalization, results) must be
// atomic.
type Repository interface {
	// Attention requests
	CreateRequest(ctx context.Context, r *AttentionRequest) error
	FindRequest(ctx context.Context, id types.ID) (*AttentionRequest, error)
	ListRequests(ctx context.Context, filter RequestFilter) ([]AttentionRequest, int, error)
	UpdateRequestStatus(ctx context.Context, r *AttentionRequest) error

	// Triage. Creation also moves the request into "En triaje".
	CreateTriage(ctx context.Context, t *Triage, r *AttentionRequest) error
	FindTriage(ctx context.Context, id types.ID) (*Triage, error)
	FindTriageByRequest(ctx context.Context, requestID types.ID) (*Triage, error)
	ListTriages(ctx context.Context, urgency Urgency, limit, offset int) ([]Triage, int, error)

	// Consultations. Creation moves the request into "En atencion",
	// marks the veterinarian busy and appends a history event, all in
	// one transaction. Finalization reverses the availability change.
	CreateConsultation(ctx context.Context, c *Consultation, r *AttentionRequest) error
	FindConsultation(ctx context.Context, id types.ID) (*Consultation, error)
	FindConsultationByTriage(ctx context.Context, triageID types.ID) (*Consultation, error)
	ListConsultationsByVet(ctx context.Context, vetID types.ID, since time.Time, limit, offset int) ([]Consultation, int, error)
	FinalizeConsultation(ctx context.Context, c *Consultation, r *AttentionRequest) error

	// Diagnoses and treatments, appended to the pet's history.
	AddDiagnosis(ctx context.Context, d *Diagnosis, petID types.ID) error
	ListDiagnoses(ctx context.Context, consultationID types.ID) ([]Diagnosis, error)
	AddTreatment(ctx context.Context, t *Treatment, petID types.ID) error
	ListTreatments(ctx context.Context, consultationID types.ID) ([]Treatment, error)

	// Requested services
	CreateOrder(ctx context.Context, o *ServiceOrder) error
	FindOrder(ctx context.Context, id types.ID) (*ServiceOrder, error)
	ListOrders(ctx context.Context, consultationID types.ID) ([]ServiceOrder, error)
	ListOpenOrders(ctx context.Context, limit, offset int) ([]ServiceOrder, int, error)
	UpdateOrderStatus(ctx context.Context, o *ServiceOrder) error

	// Appointments. Creation also marks the order "Citado".
	CreateAppointment(ctx context.Context, a *Appointment, o *ServiceOrder) error
	FindAppointment(ctx context.Context, id types.ID) (*Appointment, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]Appointment, int, error)
	UpdateAppointmentStatus(ctx context.Context, a *Appointment) error

	// Results. Registration also completes the order and appends a
	// history event.
	CreateResult(ctx context.Context, res *ServiceResult, o *ServiceOrder, petID types.ID) error
	ListResults(ctx context.Context, orderID types.ID) ([]ServiceResult, error)
	HasResultWithExternalRef(ctx context.Context, ref string) (bool, error)

	// Medical history. Events come newest first.
	HistoryForPet(ctx context.Context, petID types.ID, limit, offset int) (*MedicalHistory, []ClinicalEvent, int, error)
	EventsForConsultation(ctx context.Context, consultationID types.ID) ([]ClinicalEvent, error)

	// PetForRequest resolves the pet behind a triage's request chain.
	PetForTriage(ctx context.Context, triageID types.ID) (types.ID, error)
	PetForOrder(ctx context.Context, orderID types.ID) (types.ID, error)

	Stats(ctx context.Context) (*WorkflowStats, error)
}
