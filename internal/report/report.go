package report

import (
	"context"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/types"
)

// Dashboard is the operational snapshot shown on the landing screen.
type Dashboard struct {
	Clients           int `json:"clientes"`
	Pets              int `json:"mascotas"`
	FreeVeterinarians int `json:"veterinarios_libres"`
	PendingRequests   int `json:"solicitudes_pendientes"`
	OpenConsultations int `json:"consultas_abiertas"`
	AppointmentsToday int `json:"citas_hoy"`
	PendingOrders     int `json:"servicios_pendientes"`
}

// PeriodRow aggregates attention requests per day.
type PeriodRow struct {
	Date      time.Time `json:"fecha"`
	Requests  int       `json:"solicitudes"`
	Completed int       `json:"completadas"`
	Cancelled int       `json:"canceladas"`
}

// ServiceCount ranks services by how often they were ordered.
type ServiceCount struct {
	ServiceID types.ID `json:"servicio_id"`
	Name      string   `json:"nombre"`
	Count     int      `json:"cantidad"`
}

// PathologyCount ranks pathologies by diagnosis frequency.
type PathologyCount struct {
	PathologyID types.ID `json:"patologia_id"`
	Name        string   `json:"nombre"`
	Severity    string   `json:"gravedad"`
	Count       int      `json:"cantidad"`
}

// RevenueRow estimates income from completed service orders.
type RevenueRow struct {
	ServiceID types.ID `json:"servicio_id"`
	Name      string   `json:"nombre"`
	Completed int      `json:"completados"`
	Revenue   float64  `json:"ingreso"`
}

// UrgencyCount is the triage classification distribution over a period.
type UrgencyCount struct {
	Urgency string `json:"clasificacion_urgencia"`
	Count   int    `json:"cantidad"`
}

// VetActivity summarizes a veterinarian's workload over a period.
type VetActivity struct {
	VeterinarianID types.ID `json:"veterinario_id"`
	Name           string   `json:"nombre"`
	Shift          string   `json:"turno"`
	Disposition    string   `json:"disposicion"`
	Consultations  int      `json:"consultas"`
	Appointments   int      `json:"citas_atendidas"`
}

// ClientsSummary counts the client base and its growth over a period.
type ClientsSummary struct {
	Total       int `json:"total"`
	NewInPeriod int `json:"nuevos"`
	WithPets    int `json:"con_mascotas"`
}

// ScheduleRow is one appointment on today's schedule, grouped per veterinarian
// by ordering.
type ScheduleRow struct {
	AppointmentID  types.ID `json:"cita_id"`
	Time           string   `json:"hora"`
	Status         string   `json:"estado"`
	VeterinarianID types.ID `json:"veterinario_id"`
	Veterinarian   string   `json:"veterinario"`
	Service        string   `json:"servicio"`
	Pet            string   `json:"mascota"`
	RequiresFast   bool     `json:"requiere_ayuno"`
}

type Repository interface {
	Dashboard(ctx context.Context) (*Dashboard, error)
	AttentionsByPeriod(ctx context.Context, from, to time.Time) ([]PeriodRow, error)
	TopServices(ctx context.Context, from, to time.Time, limit int) ([]ServiceCount, error)
	FrequentPathologies(ctx context.Context, limit int) ([]PathologyCount, error)
	RevenueByService(ctx context.Context, from, to time.Time) ([]RevenueRow, float64, error)
	UrgencyDistribution(ctx context.Context, from, to time.Time) ([]UrgencyCount, error)
	VeterinarianActivity(ctx context.Context, from, to time.Time) ([]VetActivity, error)
	ClientsSummary(ctx context.Context, from, to time.Time) (*ClientsSummary, error)
	TodaySchedule(ctx context.Context) ([]ScheduleRow, error)
}
