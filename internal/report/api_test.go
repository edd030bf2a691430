package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/auth"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

type fakeRepo struct {
	dashboard Dashboard
}

func (f *fakeRepo) Dashboard(_ context.Context) (*Dashboard, error) {
	d := f.dashboard
	return &d, nil
}

func (f *fakeRepo) AttentionsByPeriod(_ context.Context, _, _ time.Time) ([]PeriodRow, error) {
	return []PeriodRow{{Date: time.Now().UTC(), Requests: 4, Completed: 3, Cancelled: 1}}, nil
}

func (f *fakeRepo) TopServices(_ context.Context, _, _ time.Time, _ int) ([]ServiceCount, error) {
	return nil, nil
}

func (f *fakeRepo) FrequentPathologies(_ context.Context, _ int) ([]PathologyCount, error) {
	return nil, nil
}

func (f *fakeRepo) RevenueByService(_ context.Context, _, _ time.Time) ([]RevenueRow, float64, error) {
	return []RevenueRow{{Name: "Hemograma", Completed: 2, Revenue: 160}}, 160, nil
}

func (f *fakeRepo) UrgencyDistribution(_ context.Context, _, _ time.Time) ([]UrgencyCount, error) {
	return []UrgencyCount{{Urgency: "Urgente", Count: 5}, {Urgency: "No urgente", Count: 2}}, nil
}

func (f *fakeRepo) VeterinarianActivity(_ context.Context, _, _ time.Time) ([]VetActivity, error) {
	return []VetActivity{{Name: "Ana Quispe", Disposition: "Libre", Consultations: 7}}, nil
}

func (f *fakeRepo) ClientsSummary(_ context.Context, _, _ time.Time) (*ClientsSummary, error) {
	return &ClientsSummary{Total: 40, NewInPeriod: 6, WithPets: 35}, nil
}

func (f *fakeRepo) TodaySchedule(_ context.Context) ([]ScheduleRow, error) {
	return []ScheduleRow{{Time: "09:30", Veterinarian: "Ana Quispe", Service: "Hemograma", Pet: "Rocky"}}, nil
}

func withRole(r *http.Request, role string) *http.Request {
	user := auth.User{
		ID:          types.NewID(),
		Username:    "tester",
		Role:        role,
		Permissions: auth.PermissionsFor(role),
	}
	return r.WithContext(auth.WithUser(r.Context(), user))
}

func TestDashboard(t *testing.T) {
	h := NewHandler(&fakeRepo{dashboard: Dashboard{Clients: 12, Pets: 20, FreeVeterinarians: 3}})

	req := withRole(httptest.NewRequest(http.MethodGet, "/", nil), auth.RoleVeterinario)
	rec := httptest.NewRecorder()
	h.DashboardRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var d Dashboard
	if err := json.NewDecoder(rec.Body).Decode(&d); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if d.Clients != 12 || d.Pets != 20 {
		t.Errorf("dashboard = %+v", d)
	}
}

func TestReportsRequireAdminPermission(t *testing.T) {
	h := NewHandler(&fakeRepo{})

	req := withRole(httptest.NewRequest(http.MethodGet, "/atenciones", nil), auth.RoleVeterinario)
	rec := httptest.NewRecorder()
	h.ReportRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestRevenueReport(t *testing.T) {
	h := NewHandler(&fakeRepo{})

	req := withRole(httptest.NewRequest(http.MethodGet, "/ingresos?desde=2026-01-01&hasta=2026-01-31", nil), auth.RoleAdministrador)
	rec := httptest.NewRecorder()
	h.ReportRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Total float64 `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 160 {
		t.Errorf("total = %v, want 160", resp.Total)
	}
}

func TestUrgencyReport(t *testing.T) {
	h := NewHandler(&fakeRepo{})

	req := withRole(httptest.NewRequest(http.MethodGet, "/urgencias", nil), auth.RoleAdministrador)
	rec := httptest.NewRecorder()
	h.ReportRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var rows []UrgencyCount
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(rows) != 2 || rows[0].Urgency != "Urgente" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestTodaySchedule(t *testing.T) {
	h := NewHandler(&fakeRepo{})

	req := withRole(httptest.NewRequest(http.MethodGet, "/hoy", nil), auth.RoleRecepcionista)
	rec := httptest.NewRecorder()
	h.AgendaRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var rows []ScheduleRow
	if err := json.NewDecoder(rec.Body).Decode(&rows); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(rows) != 1 || rows[0].Pet != "Rocky" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestAttentionsRejectsBadPeriod(t *testing.T) {
	h := NewHandler(&fakeRepo{})

	req := withRole(httptest.NewRequest(http.MethodGet, "/atenciones?desde=ayer", nil), auth.RoleAdministrador)
	rec := httptest.NewRecorder()
	h.ReportRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
