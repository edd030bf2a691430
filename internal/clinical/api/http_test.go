package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/colitas-felices/clinic/internal/clinical/domain"
	"github.com/colitas-felices/clinic/internal/shared/auth"
	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

type fakeRepo struct {
	requests      map[types.ID]*domain.AttentionRequest
	triages       map[types.ID]*domain.Triage
	consultations map[types.ID]*domain.Consultation
	orders        map[types.ID]*domain.ServiceOrder
	appointments  map[types.ID]*domain.Appointment
	results       map[types.ID]*domain.ServiceResult
	diagnoses     map[types.ID]*domain.Diagnosis
	treatments    map[types.ID]*domain.Treatment
	histories     map[types.ID]*domain.MedicalHistory
	events        []domain.ClinicalEvent
	vetBusy       map[types.ID]bool
	findOrderErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		requests:      make(map[types.ID]*domain.AttentionRequest),
		triages:       make(map[types.ID]*domain.Triage),
		consultations: make(map[types.ID]*domain.Consultation),
		orders:        make(map[types.ID]*domain.ServiceOrder),
		appointments:  make(map[types.ID]*domain.Appointment),
		results:       make(map[types.ID]*domain.ServiceResult),
		diagnoses:     make(map[types.ID]*domain.Diagnosis),
		treatments:    make(map[types.ID]*domain.Treatment),
		histories:     make(map[types.ID]*domain.MedicalHistory),
		vetBusy:       make(map[types.ID]bool),
	}
}

func (f *fakeRepo) CreateRequest(_ context.Context, r *domain.AttentionRequest) error {
	f.requests[r.ID] = r
	return nil
}

func (f *fakeRepo) FindRequest(_ context.Context, id types.ID) (*domain.AttentionRequest, error) {
	r, ok := f.requests[id]
	if !ok {
		return nil, errors.NotFound("solicitud de atencion", id.String())
	}
	copy := *r
	return &copy, nil
}

func (f *fakeRepo) ListRequests(_ context.Context, filter domain.RequestFilter) ([]domain.AttentionRequest, int, error) {
	var out []domain.AttentionRequest
	for _, r := range f.requests {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, *r)
	}
	return out, len(out), nil
}

func (f *fakeRepo) UpdateRequestStatus(_ context.Context, r *domain.AttentionRequest) error {
	if _, ok := f.requests[r.ID]; !ok {
		return errors.NotFound("solicitud de atencion", r.ID.String())
	}
	f.requests[r.ID] = r
	return nil
}

func (f *fakeRepo) CreateTriage(_ context.Context, t *domain.Triage, r *domain.AttentionRequest) error {
	for _, existing := range f.triages {
		if existing.RequestID == t.RequestID {
			return errors.Conflict("la solicitud ya tiene un triaje registrado")
		}
	}
	f.triages[t.ID] = t
	f.requests[r.ID] = r
	return nil
}

func (f *fakeRepo) FindTriage(_ context.Context, id types.ID) (*domain.Triage, error) {
	t, ok := f.triages[id]
	if !ok {
		return nil, errors.NotFound("triaje", id.String())
	}
	return t, nil
}

func (f *fakeRepo) FindTriageByRequest(_ context.Context, requestID types.ID) (*domain.Triage, error) {
	for _, t := range f.triages {
		if t.RequestID == requestID {
			return t, nil
		}
	}
	return nil, errors.NotFound("triaje", requestID.String())
}

func (f *fakeRepo) ListTriages(_ context.Context, urgency domain.Urgency, _, _ int) ([]domain.Triage, int, error) {
	var out []domain.Triage
	for _, t := range f.triages {
		if urgency != "" && t.Urgency != urgency {
			continue
		}
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (f *fakeRepo) CreateConsultation(_ context.Context, c *domain.Consultation, r *domain.AttentionRequest) error {
	if f.vetBusy[c.VeterinarianID] {
		return errors.Conflict("el veterinario no esta libre")
	}
	f.consultations[c.ID] = c
	f.requests[r.ID] = r
	f.vetBusy[c.VeterinarianID] = true
	return nil
}

func (f *fakeRepo) FindConsultation(_ context.Context, id types.ID) (*domain.Consultation, error) {
	c, ok := f.consultations[id]
	if !ok {
		return nil, errors.NotFound("consulta", id.String())
	}
	copy := *c
	return &copy, nil
}

func (f *fakeRepo) FindConsultationByTriage(_ context.Context, triageID types.ID) (*domain.Consultation, error) {
	for _, c := range f.consultations {
		if c.TriageID == triageID {
			return c, nil
		}
	}
	return nil, errors.NotFound("consulta", triageID.String())
}

func (f *fakeRepo) ListConsultationsByVet(_ context.Context, vetID types.ID, _ time.Time, _, _ int) ([]domain.Consultation, int, error) {
	var out []domain.Consultation
	for _, c := range f.consultations {
		if !vetID.IsZero() && c.VeterinarianID != vetID {
			continue
		}
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (f *fakeRepo) FinalizeConsultation(_ context.Context, c *domain.Consultation, r *domain.AttentionRequest) error {
	f.consultations[c.ID] = c
	f.requests[r.ID] = r
	f.vetBusy[c.VeterinarianID] = false
	return nil
}

func (f *fakeRepo) AddDiagnosis(_ context.Context, d *domain.Diagnosis, _ types.ID) error {
	f.diagnoses[d.ID] = d
	return nil
}

func (f *fakeRepo) ListDiagnoses(_ context.Context, consultationID types.ID) ([]domain.Diagnosis, error) {
	var out []domain.Diagnosis
	for _, d := range f.diagnoses {
		if d.ConsultationID == consultationID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeRepo) AddTreatment(_ context.Context, t *domain.Treatment, _ types.ID) error {
	f.treatments[t.ID] = t
	return nil
}

func (f *fakeRepo) ListTreatments(_ context.Context, consultationID types.ID) ([]domain.Treatment, error) {
	var out []domain.Treatment
	for _, t := range f.treatments {
		if t.ConsultationID == consultationID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeRepo) CreateOrder(_ context.Context, o *domain.ServiceOrder) error {
	f.orders[o.ID] = o
	return nil
}

func (f *fakeRepo) FindOrder(_ context.Context, id types.ID) (*domain.ServiceOrder, error) {
	if f.findOrderErr != nil {
		return nil, f.findOrderErr
	}
	o, ok := f.orders[id]
	if !ok {
		return nil, errors.NotFound("servicio solicitado", id.String())
	}
	copy := *o
	return &copy, nil
}

func (f *fakeRepo) ListOrders(_ context.Context, consultationID types.ID) ([]domain.ServiceOrder, error) {
	var out []domain.ServiceOrder
	for _, o := range f.orders {
		if o.ConsultationID == consultationID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (f *fakeRepo) ListOpenOrders(_ context.Context, _, _ int) ([]domain.ServiceOrder, int, error) {
	out := make([]domain.ServiceOrder, 0)
	for _, o := range f.orders {
		switch o.Status {
		case domain.OrderRequested, domain.OrderScheduled, domain.OrderInProgress:
			out = append(out, *o)
		}
	}
	return out, len(out), nil
}

func (f *fakeRepo) UpdateOrderStatus(_ context.Context, o *domain.ServiceOrder) error {
	if _, ok := f.orders[o.ID]; !ok {
		return errors.NotFound("servicio solicitado", o.ID.String())
	}
	f.orders[o.ID] = o
	return nil
}

func (f *fakeRepo) CreateAppointment(_ context.Context, a *domain.Appointment, o *domain.ServiceOrder) error {
	for _, existing := range f.appointments {
		if existing.ServiceOrderID == a.ServiceOrderID {
			return errors.Conflict("el servicio solicitado ya tiene una cita")
		}
	}
	f.appointments[a.ID] = a
	f.orders[o.ID] = o
	return nil
}

func (f *fakeRepo) FindAppointment(_ context.Context, id types.ID) (*domain.Appointment, error) {
	a, ok := f.appointments[id]
	if !ok {
		return nil, errors.NotFound("cita", id.String())
	}
	copy := *a
	return &copy, nil
}

func (f *fakeRepo) ListAppointments(_ context.Context, filter domain.AppointmentFilter) ([]domain.Appointment, int, error) {
	var out []domain.Appointment
	for _, a := range f.appointments {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		out = append(out, *a)
	}
	return out, len(out), nil
}

func (f *fakeRepo) UpdateAppointmentStatus(_ context.Context, a *domain.Appointment) error {
	if _, ok := f.appointments[a.ID]; !ok {
		return errors.NotFound("cita", a.ID.String())
	}
	f.appointments[a.ID] = a
	return nil
}

func (f *fakeRepo) CreateResult(_ context.Context, res *domain.ServiceResult, o *domain.ServiceOrder, _ types.ID) error {
	f.results[res.ID] = res
	f.orders[o.ID] = o
	for _, a := range f.appointments {
		if a.ServiceOrderID == o.ID && a.Status == domain.AppointmentScheduled {
			a.Status = domain.AppointmentAttended
		}
	}
	return nil
}

func (f *fakeRepo) ListResults(_ context.Context, orderID types.ID) ([]domain.ServiceResult, error) {
	var out []domain.ServiceResult
	for _, res := range f.results {
		if res.ServiceOrderID == orderID {
			out = append(out, *res)
		}
	}
	return out, nil
}

func (f *fakeRepo) HasResultWithExternalRef(_ context.Context, ref string) (bool, error) {
	for _, res := range f.results {
		if res.ExternalRef != nil && *res.ExternalRef == ref {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) HistoryForPet(_ context.Context, petID types.ID, limit, offset int) (*domain.MedicalHistory, []domain.ClinicalEvent, int, error) {
	h, ok := f.histories[petID]
	if !ok {
		return nil, nil, 0, errors.NotFound("historial clinico", petID.String())
	}
	all := make([]domain.ClinicalEvent, 0)
	for _, e := range f.events {
		if e.HistoryID == h.ID {
			all = append(all, e)
		}
	}
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return h, all, total, nil
}

func (f *fakeRepo) EventsForConsultation(_ context.Context, consultationID types.ID) ([]domain.ClinicalEvent, error) {
	out := make([]domain.ClinicalEvent, 0)
	for _, e := range f.events {
		if e.ConsultationID != nil && *e.ConsultationID == consultationID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) PetForTriage(_ context.Context, triageID types.ID) (types.ID, error) {
	t, ok := f.triages[triageID]
	if !ok {
		return "", errors.NotFound("triaje", triageID.String())
	}
	r, ok := f.requests[t.RequestID]
	if !ok {
		return "", errors.NotFound("solicitud de atencion", t.RequestID.String())
	}
	return r.PetID, nil
}

func (f *fakeRepo) PetForOrder(_ context.Context, orderID types.ID) (types.ID, error) {
	o, ok := f.orders[orderID]
	if !ok {
		return "", errors.NotFound("servicio solicitado", orderID.String())
	}
	c, ok := f.consultations[o.ConsultationID]
	if !ok {
		return "", errors.NotFound("consulta", o.ConsultationID.String())
	}
	return f.PetForTriage(nil, c.TriageID)
}

func (f *fakeRepo) Stats(_ context.Context) (*domain.WorkflowStats, error) {
	stats := &domain.WorkflowStats{
		RequestsByStatus: map[string]int{},
		TriagesByUrgency: map[string]int{},
	}
	for _, r := range f.requests {
		stats.RequestsByStatus[string(r.Status)]++
	}
	for _, t := range f.triages {
		stats.TriagesByUrgency[string(t.Urgency)]++
	}
	return stats, nil
}

// --- Helpers ---

func asReceptionist(r *http.Request) *http.Request {
	user := auth.User{
		ID:          types.NewID(),
		Username:    "recepcion1",
		Role:        auth.RoleRecepcionista,
		ProfileID:   types.NewID(),
		Permissions: auth.PermissionsFor(auth.RoleRecepcionista),
	}
	return r.WithContext(auth.WithUser(r.Context(), user))
}

func asVet(r *http.Request, profileID types.ID) *http.Request {
	user := auth.User{
		ID:          types.NewID(),
		Username:    "vet1",
		Role:        auth.RoleVeterinario,
		ProfileID:   profileID,
		Permissions: auth.PermissionsFor(auth.RoleVeterinario),
	}
	return r.WithContext(auth.WithUser(r.Context(), user))
}

func validVitalsBody() string {
	return `"peso_mascota": 8.5, "latido_por_minuto": 110, "frecuencia_respiratoria": 30,
		"temperatura": 38.5, "frecuencia_pulso": 100, "porcentaje_deshidratacion": 5`
}

func seedRequest(t *testing.T, repo *fakeRepo) *domain.AttentionRequest {
	t.Helper()
	req, err := domain.NewAttentionRequest(types.NewID(), domain.RequestRegular, "decaimiento y fiebre", nil)
	if err != nil {
		t.Fatalf("seeding request: %v", err)
	}
	repo.requests[req.ID] = req
	return req
}

func seedTriagedRequest(t *testing.T, repo *fakeRepo) (*domain.AttentionRequest, *domain.Triage) {
	t.Helper()
	req := seedRequest(t, repo)
	if err := req.BeginTriage(); err != nil {
		t.Fatalf("seeding triage transition: %v", err)
	}
	triage, err := domain.NewTriage(req.ID, types.NewID(), domain.Vitals{
		WeightKg: 8.5, HeartRate: 110, RespiratoryRate: 30,
		Temperature: 38.5, PulseRate: 100, DehydrationPct: 5,
	}, domain.BodyNormal, domain.UrgencyModerate)
	if err != nil {
		t.Fatalf("seeding triage: %v", err)
	}
	repo.triages[triage.ID] = triage
	return req, triage
}

func seedConsultation(t *testing.T, repo *fakeRepo) (*domain.AttentionRequest, *domain.Consultation) {
	t.Helper()
	req, triage := seedTriagedRequest(t, repo)
	if err := req.BeginAttention(); err != nil {
		t.Fatalf("seeding attention transition: %v", err)
	}
	c, err := domain.NewConsultation(triage.ID, triage.VeterinarianID, "evaluacion de fiebre", "")
	if err != nil {
		t.Fatalf("seeding consultation: %v", err)
	}
	repo.consultations[c.ID] = c
	repo.vetBusy[c.VeterinarianID] = true
	return req, c
}

// --- Tests ---

func TestCreateRequest(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)

	body := `{"mascota_id": "` + types.NewID().String() + `", "motivo": "cojera en pata trasera"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = asReceptionist(req)
	rec := httptest.NewRecorder()

	h.RequestRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var created domain.AttentionRequest
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.Status != domain.RequestPending {
		t.Errorf("status = %q, want %q", created.Status, domain.RequestPending)
	}
	if created.Type != domain.RequestRegular {
		t.Errorf("type = %q, want default %q", created.Type, domain.RequestRegular)
	}
	if created.ReceptionistID == nil {
		t.Error("receptionist not recorded from the acting user")
	}
	if len(repo.requests) != 1 {
		t.Errorf("stored requests = %d, want 1", len(repo.requests))
	}
}

func TestCreateRequestWithType(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)

	body := `{"mascota_id": "` + types.NewID().String() + `", "tipo_solicitud": "Consulta urgente", "motivo": "convulsiones"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = asReceptionist(req)
	rec := httptest.NewRecorder()

	h.RequestRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var created domain.AttentionRequest
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.Type != domain.RequestUrgent {
		t.Errorf("type = %q, want %q", created.Type, domain.RequestUrgent)
	}

	body = `{"mascota_id": "` + types.NewID().String() + `", "tipo_solicitud": "Emergencia", "motivo": "convulsiones"}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = asReceptionist(req)
	rec = httptest.NewRecorder()
	h.RequestRoutes().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown type status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateRequestRequiresPermission(t *testing.T) {
	h := NewHandler(newFakeRepo(), nil)

	body := `{"mascota_id": "` + types.NewID().String() + `", "motivo": "control"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = asVet(req, types.NewID())
	rec := httptest.NewRecorder()

	h.RequestRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestCancelRequest(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)
	attention := seedRequest(t, repo)

	req := httptest.NewRequest(http.MethodPost, "/"+attention.ID.String()+"/cancelar", nil)
	req = asReceptionist(req)
	rec := httptest.NewRecorder()

	h.RequestRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if repo.requests[attention.ID].Status != domain.RequestCancelled {
		t.Errorf("status = %q, want %q", repo.requests[attention.ID].Status, domain.RequestCancelled)
	}
}

func TestCreateTriage(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)
	attention := seedRequest(t, repo)
	vetID := types.NewID()

	body := `{"solicitud_id": "` + attention.ID.String() + `", ` + validVitalsBody() + `,
		"condicion_corporal": "Normal", "clasificacion_urgencia": "Urgente"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = asVet(req, vetID)
	rec := httptest.NewRecorder()

	h.TriageRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var created domain.Triage
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.VeterinarianID != vetID {
		t.Errorf("vet = %s, want actor profile %s", created.VeterinarianID, vetID)
	}
	if repo.requests[attention.ID].Status != domain.RequestInTriage {
		t.Errorf("request status = %q, want %q", repo.requests[attention.ID].Status, domain.RequestInTriage)
	}
}

func TestCreateTriageRejectsBadVitals(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)
	attention := seedRequest(t, repo)

	body := `{"solicitud_id": "` + attention.ID.String() + `",
		"peso_mascota": 0, "latido_por_minuto": 110, "frecuencia_respiratoria": 30,
		"temperatura": 38.5, "frecuencia_pulso": 100, "porcentaje_deshidratacion": 5,
		"condicion_corporal": "Normal", "clasificacion_urgencia": "Urgente"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = asVet(req, types.NewID())
	rec := httptest.NewRecorder()

	h.TriageRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Details map[string]string `json:"details"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if _, ok := resp.Details["peso_mascota"]; !ok {
		t.Errorf("details missing peso_mascota: %v", resp.Details)
	}
}

func TestCreateTriageTwiceConflicts(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)
	attention, _ := seedTriagedRequest(t, repo)

	// restore to Pendiente so the handler transition succeeds and the
	// repository unique check is the one that fires
	attention.Status = domain.RequestPending

	body := `{"solicitud_id": "` + attention.ID.String() + `", ` + validVitalsBody() + `,
		"condicion_corporal": "Normal", "clasificacion_urgencia": "Urgente"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = asVet(req, types.NewID())
	rec := httptest.NewRecorder()

	h.TriageRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestCreateConsultation(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)
	attention, triage := seedTriagedRequest(t, repo)

	body := `{"triaje_id": "` + triage.ID.String() + `", "motivo": "evaluacion de fiebre"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = asVet(req, triage.VeterinarianID)
	rec := httptest.NewRecorder()

	h.ConsultationRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if repo.requests[attention.ID].Status != domain.RequestInProgress {
		t.Errorf("request status = %q, want %q", repo.requests[attention.ID].Status, domain.RequestInProgress)
	}
	if !repo.vetBusy[triage.VeterinarianID] {
		t.Error("veterinarian should be busy after opening a consultation")
	}
}

func TestCreateConsultationVetBusy(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)
	_, triage := seedTriagedRequest(t, repo)
	repo.vetBusy[triage.VeterinarianID] = true

	body := `{"triaje_id": "` + triage.ID.String() + `", "motivo": "evaluacion de fiebre"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = asVet(req, triage.VeterinarianID)
	rec := httptest.NewRecorder()

	h.ConsultationRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409: %s", rec.Code, rec.Body.String())
	}
}

func TestFinalizeConsultation(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)
	attention, c := seedConsultation(t, repo)

	body := `{"observaciones": "evoluciona favorablemente"}`
	req := httptest.NewRequest(http.MethodPost, "/"+c.ID.String()+"/finalizar", strings.NewReader(body))
	req = asVet(req, c.VeterinarianID)
	rec := httptest.NewRecorder()

	h.ConsultationRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if repo.consultations[c.ID].FinishedAt == nil {
		t.Error("consultation not finalized")
	}
	if repo.requests[attention.ID].Status != domain.RequestCompleted {
		t.Errorf("request status = %q, want %q", repo.requests[attention.ID].Status, domain.RequestCompleted)
	}
	if repo.vetBusy[c.VeterinarianID] {
		t.Error("veterinarian should be free after finalization")
	}
}

func TestAddDiagnosisAndTreatment(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)
	_, c := seedConsultation(t, repo)
	router := h.ConsultationRoutes()

	body := `{"patologia_id": "` + types.NewID().String() + `", "tipo_diagnostico": "Presuntivo", "detalle": "posible gastritis"}`
	req := httptest.NewRequest(http.MethodPost, "/"+c.ID.String()+"/diagnosticos", strings.NewReader(body))
	req = asVet(req, c.VeterinarianID)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("diagnosis status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	body = `{"tipo_tratamiento": "Medicamentoso", "descripcion": "omeprazol 1mg/kg cada 24h", "duracion_dias": 7}`
	req = httptest.NewRequest(http.MethodPost, "/"+c.ID.String()+"/tratamientos", strings.NewReader(body))
	req = asVet(req, c.VeterinarianID)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("treatment status = %d, want 201: %s", rec.Code, rec.Body.String())
	}

	if len(repo.diagnoses) != 1 || len(repo.treatments) != 1 {
		t.Errorf("stored diagnoses = %d, treatments = %d, want 1 and 1", len(repo.diagnoses), len(repo.treatments))
	}
	for _, tr := range repo.treatments {
		if tr.Type != domain.TreatmentMedication {
			t.Errorf("treatment type = %q, want %q", tr.Type, domain.TreatmentMedication)
		}
	}

	// without a treatment type the request is rejected
	body = `{"descripcion": "reposo absoluto", "duracion_dias": 3}`
	req = httptest.NewRequest(http.MethodPost, "/"+c.ID.String()+"/tratamientos", strings.NewReader(body))
	req = asVet(req, c.VeterinarianID)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("typeless treatment status = %d, want 400: %s", rec.Code, rec.Body.String())
	}
}

func TestOrderAndAppointmentFlow(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)
	_, c := seedConsultation(t, repo)

	body := `{"servicio_id": "` + types.NewID().String() + `", "prioridad": "Programable", "comentario": "hemograma"}`
	req := httptest.NewRequest(http.MethodPost, "/"+c.ID.String()+"/servicios", strings.NewReader(body))
	req = asVet(req, c.VeterinarianID)
	rec := httptest.NewRecorder()
	h.ConsultationRoutes().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("order status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var order domain.ServiceOrder
	if err := json.NewDecoder(rec.Body).Decode(&order); err != nil {
		t.Fatalf("decoding order: %v", err)
	}
	if order.Status != domain.OrderRequested {
		t.Errorf("new order status = %q, want %q", order.Status, domain.OrderRequested)
	}

	tomorrow := time.Now().UTC().AddDate(0, 0, 1).Format("2006-01-02")
	body = `{"servicio_solicitado_id": "` + order.ID.String() + `", "veterinario_id": "` + c.VeterinarianID.String() + `",
		"fecha": "` + tomorrow + `", "hora": "10:30", "requiere_ayuno": true}`
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req = asReceptionist(req)
	rec = httptest.NewRecorder()
	h.AppointmentRoutes().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("appointment status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var appointment domain.Appointment
	if err := json.NewDecoder(rec.Body).Decode(&appointment); err != nil {
		t.Fatalf("decoding appointment: %v", err)
	}

	if repo.orders[order.ID].Status != domain.OrderScheduled {
		t.Errorf("order status = %q, want %q", repo.orders[order.ID].Status, domain.OrderScheduled)
	}

	req = httptest.NewRequest(http.MethodPost, "/"+appointment.ID.String()+"/atender", nil)
	req = asVet(req, c.VeterinarianID)
	rec = httptest.NewRecorder()
	h.AppointmentRoutes().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("attend status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if repo.appointments[appointment.ID].Status != domain.AppointmentAttended {
		t.Errorf("appointment status = %q, want %q", repo.appointments[appointment.ID].Status, domain.AppointmentAttended)
	}
	if repo.orders[order.ID].Status != domain.OrderInProgress {
		t.Errorf("order status after attending = %q, want %q", repo.orders[order.ID].Status, domain.OrderInProgress)
	}
}

func TestCancelAppointmentCancelsOrder(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)
	_, c := seedConsultation(t, repo)

	order, err := domain.NewServiceOrder(c.ID, types.NewID(), domain.PriorityNormal, "")
	if err != nil {
		t.Fatalf("seeding order: %v", err)
	}
	if err := order.Schedule(); err != nil {
		t.Fatalf("scheduling order: %v", err)
	}
	repo.orders[order.ID] = order

	appointment, err := domain.NewAppointment(order.ID, c.VeterinarianID,
		time.Now().UTC().AddDate(0, 0, 2), "11:00", false, "")
	if err != nil {
		t.Fatalf("seeding appointment: %v", err)
	}
	repo.appointments[appointment.ID] = appointment

	req := httptest.NewRequest(http.MethodPost, "/"+appointment.ID.String()+"/cancelar", nil)
	req = asReceptionist(req)
	rec := httptest.NewRecorder()
	h.AppointmentRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if repo.appointments[appointment.ID].Status != domain.AppointmentCancelled {
		t.Errorf("appointment status = %q", repo.appointments[appointment.ID].Status)
	}
	if repo.orders[order.ID].Status != domain.OrderCancelled {
		t.Errorf("order status = %q, want %q", repo.orders[order.ID].Status, domain.OrderCancelled)
	}
}

func TestCancelAppointmentOrderLookupFails(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)
	_, c := seedConsultation(t, repo)

	order, err := domain.NewServiceOrder(c.ID, types.NewID(), domain.PriorityNormal, "")
	if err != nil {
		t.Fatalf("seeding order: %v", err)
	}
	repo.orders[order.ID] = order

	appointment, err := domain.NewAppointment(order.ID, c.VeterinarianID,
		time.Now().UTC().AddDate(0, 0, 2), "11:00", false, "")
	if err != nil {
		t.Fatalf("seeding appointment: %v", err)
	}
	repo.appointments[appointment.ID] = appointment
	repo.findOrderErr = errors.Internal(context.DeadlineExceeded)

	req := httptest.NewRequest(http.MethodPost, "/"+appointment.ID.String()+"/cancelar", nil)
	req = asReceptionist(req)
	rec := httptest.NewRecorder()
	h.AppointmentRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500: %s", rec.Code, rec.Body.String())
	}
	if repo.orders[order.ID].Status != domain.OrderRequested {
		t.Errorf("order status = %q, should be untouched when the lookup fails", repo.orders[order.ID].Status)
	}
}

func TestCreateResultCompletesOrder(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)
	_, c := seedConsultation(t, repo)

	order, err := domain.NewServiceOrder(c.ID, types.NewID(), domain.PriorityNormal, "")
	if err != nil {
		t.Fatalf("seeding order: %v", err)
	}
	if err := order.Schedule(); err != nil {
		t.Fatalf("scheduling order: %v", err)
	}
	repo.orders[order.ID] = order

	appointment, err := domain.NewAppointment(order.ID, c.VeterinarianID,
		time.Now().UTC().AddDate(0, 0, 1), "09:00", false, "")
	if err != nil {
		t.Fatalf("seeding appointment: %v", err)
	}
	repo.appointments[appointment.ID] = appointment

	body := `{"descripcion": "radiografia sin hallazgos relevantes"}`
	req := httptest.NewRequest(http.MethodPost, "/"+order.ID.String()+"/resultados", strings.NewReader(body))
	req = asVet(req, c.VeterinarianID)
	rec := httptest.NewRecorder()
	h.OrderRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if repo.orders[order.ID].Status != domain.OrderCompleted {
		t.Errorf("order status = %q, want %q", repo.orders[order.ID].Status, domain.OrderCompleted)
	}
	if len(repo.results) != 1 {
		t.Fatalf("stored results = %d, want 1", len(repo.results))
	}
	for _, res := range repo.results {
		if res.Origin != domain.ResultOriginInternal {
			t.Errorf("origin = %q, want %q", res.Origin, domain.ResultOriginInternal)
		}
	}
	if repo.appointments[appointment.ID].Status != domain.AppointmentAttended {
		t.Errorf("appointment status = %q, want %q", repo.appointments[appointment.ID].Status, domain.AppointmentAttended)
	}
}

func TestGetHistoryPaginated(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)

	petID := types.NewID()
	history := &domain.MedicalHistory{ID: types.NewID(), PetID: petID, CreatedAt: time.Now().UTC()}
	repo.histories[petID] = history
	for i := 0; i < 3; i++ {
		e := domain.NewClinicalEvent(history.ID, domain.EventConsultation, "control periodico", nil).
			WithWeight(8.0 + float64(i)).WithAge(24 + i)
		repo.events = append(repo.events, e)
	}

	req := httptest.NewRequest(http.MethodGet, "/mascota/"+petID.String()+"?limit=2", nil)
	req = asVet(req, types.NewID())
	rec := httptest.NewRecorder()
	h.HistoryRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Events []domain.ClinicalEvent `json:"eventos"`
		Total  int                    `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Events) != 2 {
		t.Errorf("page size = %d, want 2", len(resp.Events))
	}
	if resp.Total != 3 {
		t.Errorf("total = %d, want 3", resp.Total)
	}
	if resp.Events[0].WeightKg == nil || resp.Events[0].AgeMonths == nil {
		t.Error("events should carry weight and age measurements")
	}
}

func TestGetConsultationEvents(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)

	historyID := types.NewID()
	consultationID := types.NewID()
	vetID := types.NewID()
	linked := domain.NewClinicalEvent(historyID, domain.EventDiagnosis, "gastritis cronica", nil).
		WithConsultation(consultationID).WithVeterinarian(vetID)
	other := domain.NewClinicalEvent(historyID, domain.EventTriage, "triaje de ingreso", nil)
	repo.events = append(repo.events, linked, other)

	req := httptest.NewRequest(http.MethodGet, "/consulta/"+consultationID.String(), nil)
	req = asVet(req, vetID)
	rec := httptest.NewRecorder()
	h.HistoryRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Events []domain.ClinicalEvent `json:"eventos"`
		Total  int                    `json:"total"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Total != 1 || len(resp.Events) != 1 {
		t.Fatalf("total = %d, events = %d, want 1 and 1", resp.Total, len(resp.Events))
	}
	if resp.Events[0].VeterinarianID == nil || *resp.Events[0].VeterinarianID != vetID {
		t.Error("event should carry the acting veterinarian")
	}
}

func TestListOpenOrdersEmptyIsArray(t *testing.T) {
	repo := newFakeRepo()
	h := NewHandler(repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/abiertos", nil)
	req = asVet(req, types.NewID())
	rec := httptest.NewRecorder()
	h.OrderRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "[]") {
		t.Errorf("empty listing should render as [], got %s", rec.Body.String())
	}
}

func TestHistoryRequiresPermission(t *testing.T) {
	h := NewHandler(newFakeRepo(), nil)

	req := httptest.NewRequest(http.MethodGet, "/mascota/"+types.NewID().String(), nil)
	req = asReceptionist(req)
	rec := httptest.NewRecorder()
	h.HistoryRoutes().ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}
