package domain

import (
	"testing"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/types"
)

func validVitals() Vitals {
	return Vitals{
		WeightKg:        8.5,
		HeartRate:       110,
		RespiratoryRate: 30,
		Temperature:     38.5,
		PulseRate:       100,
		DehydrationPct:  5,
	}
}

func TestRequestLifecycle(t *testing.T) {
	req, err := NewAttentionRequest(types.NewID(), RequestUrgent, "vomitos desde ayer", nil)
	if err != nil {
		t.Fatalf("NewAttentionRequest: %v", err)
	}
	if req.Status != RequestPending {
		t.Fatalf("status = %q, want %q", req.Status, RequestPending)
	}
	if req.Type != RequestUrgent {
		t.Fatalf("type = %q, want %q", req.Type, RequestUrgent)
	}

	if err := req.BeginAttention(); err == nil {
		t.Error("BeginAttention from Pendiente should fail")
	}
	if err := req.BeginTriage(); err != nil {
		t.Fatalf("BeginTriage: %v", err)
	}
	if err := req.BeginTriage(); err == nil {
		t.Error("BeginTriage twice should fail")
	}
	if err := req.BeginAttention(); err != nil {
		t.Fatalf("BeginAttention: %v", err)
	}
	if err := req.Cancel(); err == nil {
		t.Error("Cancel from En atencion should fail")
	}
	if err := req.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if req.Status != RequestCompleted {
		t.Errorf("status = %q, want %q", req.Status, RequestCompleted)
	}
}

func TestNewRequestDefaults(t *testing.T) {
	recID := types.NewID()
	req, err := NewAttentionRequest(types.NewID(), "", "control de rutina", &recID)
	if err != nil {
		t.Fatalf("NewAttentionRequest: %v", err)
	}
	if req.Type != RequestRegular {
		t.Errorf("type = %q, want %q", req.Type, RequestRegular)
	}
	if req.ReceptionistID == nil || *req.ReceptionistID != recID {
		t.Errorf("receptionist = %v, want %s", req.ReceptionistID, recID)
	}
}

func TestRequestCancelBeforeAttention(t *testing.T) {
	for _, begin := range []bool{false, true} {
		req, _ := NewAttentionRequest(types.NewID(), RequestRegular, "control de rutina", nil)
		if begin {
			if err := req.BeginTriage(); err != nil {
				t.Fatalf("BeginTriage: %v", err)
			}
		}
		if err := req.Cancel(); err != nil {
			t.Fatalf("Cancel (triaged=%v): %v", begin, err)
		}
		if req.Status != RequestCancelled {
			t.Errorf("status = %q, want %q", req.Status, RequestCancelled)
		}
	}
}

func TestVitalsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Vitals)
		field  string
	}{
		{"weight too low", func(v *Vitals) { v.WeightKg = 0 }, "peso_mascota"},
		{"weight too high", func(v *Vitals) { v.WeightKg = 150 }, "peso_mascota"},
		{"heart rate low", func(v *Vitals) { v.HeartRate = 20 }, "latido_por_minuto"},
		{"respiratory high", func(v *Vitals) { v.RespiratoryRate = 200 }, "frecuencia_respiratoria"},
		{"temperature low", func(v *Vitals) { v.Temperature = 30 }, "temperatura"},
		{"pulse high", func(v *Vitals) { v.PulseRate = 400 }, "frecuencia_pulso"},
		{"dehydration high", func(v *Vitals) { v.DehydrationPct = 120 }, "porcentaje_deshidratacion"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := validVitals()
			tt.mutate(&v)
			details := v.Validate()
			if details == nil {
				t.Fatal("Validate() = nil, want problem")
			}
			if _, ok := details[tt.field]; !ok {
				t.Errorf("details missing %q: %v", tt.field, details)
			}
		})
	}

	if details := validVitals().Validate(); details != nil {
		t.Errorf("valid vitals rejected: %v", details)
	}
}

func TestNewTriage(t *testing.T) {
	triage, err := NewTriage(types.NewID(), types.NewID(), validVitals(), BodyNormal, UrgencyModerate)
	if err != nil {
		t.Fatalf("NewTriage: %v", err)
	}
	if triage.Urgency != UrgencyModerate {
		t.Errorf("urgency = %q, want %q", triage.Urgency, UrgencyModerate)
	}

	if _, err := NewTriage(types.ID(""), types.NewID(), validVitals(), BodyNormal, UrgencyModerate); err == nil {
		t.Error("missing request ID should fail")
	}
}

func TestConsultationFinish(t *testing.T) {
	c, err := NewConsultation(types.NewID(), types.NewID(), "fiebre persistente", "")
	if err != nil {
		t.Fatalf("NewConsultation: %v", err)
	}
	if c.Type != "General" {
		t.Errorf("type = %q, want General", c.Type)
	}
	if !c.Open() {
		t.Fatal("new consultation should be open")
	}

	if err := c.Finish("se indico tratamiento antibiotico"); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if c.Open() {
		t.Error("finished consultation still open")
	}
	if c.Observations != "se indico tratamiento antibiotico" {
		t.Errorf("observations = %q", c.Observations)
	}
	if err := c.Finish("otra vez"); err == nil {
		t.Error("Finish twice should fail")
	}
}

func TestNewConsultationRejectsShortReason(t *testing.T) {
	if _, err := NewConsultation(types.NewID(), types.NewID(), "tos", ""); err == nil {
		t.Error("short reason should fail")
	}
}

func TestOrderTransitions(t *testing.T) {
	order, err := NewServiceOrder(types.NewID(), types.NewID(), PriorityNormal, "")
	if err != nil {
		t.Fatalf("NewServiceOrder: %v", err)
	}
	if order.Status != OrderRequested {
		t.Fatalf("status = %q, want %q", order.Status, OrderRequested)
	}

	if err := order.Start(); err == nil {
		t.Error("Start before scheduling should fail")
	}
	if err := order.Schedule(); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if order.Status != OrderScheduled {
		t.Fatalf("status = %q, want %q", order.Status, OrderScheduled)
	}
	if err := order.Schedule(); err == nil {
		t.Error("Schedule twice should fail")
	}
	if err := order.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if order.Status != OrderInProgress {
		t.Fatalf("status = %q, want %q", order.Status, OrderInProgress)
	}
	if err := order.Complete(); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := order.Cancel(); err == nil {
		t.Error("Cancel after completion should fail")
	}
}

func TestOrderCompleteWithoutAppointment(t *testing.T) {
	// Internal results can close a requested order directly.
	order, _ := NewServiceOrder(types.NewID(), types.NewID(), PriorityUrgent, "hemograma completo")
	if err := order.Complete(); err != nil {
		t.Fatalf("Complete from Solicitado: %v", err)
	}

	// A cited order that the pet walks in for also completes directly.
	order, _ = NewServiceOrder(types.NewID(), types.NewID(), PriorityNormal, "")
	if err := order.Schedule(); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if err := order.Complete(); err != nil {
		t.Fatalf("Complete from Citado: %v", err)
	}
}

func TestNewAppointment(t *testing.T) {
	tomorrow := time.Now().UTC().AddDate(0, 0, 1)

	a, err := NewAppointment(types.NewID(), types.NewID(), tomorrow, "10:30", true, "")
	if err != nil {
		t.Fatalf("NewAppointment: %v", err)
	}
	if a.Status != AppointmentScheduled {
		t.Errorf("status = %q, want %q", a.Status, AppointmentScheduled)
	}

	if _, err := NewAppointment(types.NewID(), types.NewID(), tomorrow.AddDate(0, 0, -3), "10:30", false, ""); err == nil {
		t.Error("past date should fail")
	}
	if _, err := NewAppointment(types.NewID(), types.NewID(), tomorrow, "25:99", false, ""); err == nil {
		t.Error("bad time should fail")
	}
}

func TestAppointmentTransitions(t *testing.T) {
	tomorrow := time.Now().UTC().AddDate(0, 0, 1)
	a, _ := NewAppointment(types.NewID(), types.NewID(), tomorrow, "09:00", false, "")

	if err := a.MarkAttended(); err != nil {
		t.Fatalf("MarkAttended: %v", err)
	}
	if err := a.Cancel(); err == nil {
		t.Error("Cancel after attended should fail")
	}
}

func TestNewServiceResult(t *testing.T) {
	vetID := types.NewID()
	res, err := NewServiceResult(types.NewID(), &vetID, "radiografia sin hallazgos", nil)
	if err != nil {
		t.Fatalf("NewServiceResult: %v", err)
	}
	if res.Origin != ResultOriginInternal {
		t.Errorf("origin = %q, want %q", res.Origin, ResultOriginInternal)
	}

	if _, err := NewServiceResult(types.NewID(), &vetID, "ok", nil); err == nil {
		t.Error("short description should fail")
	}
}

func TestNewLabResult(t *testing.T) {
	ref := "LAB-2024-0042"
	res := NewLabResult(types.NewID(), "leucocitos dentro de rango", ref, time.Now().UTC())
	if res.Origin != ResultOriginLab {
		t.Errorf("origin = %q, want %q", res.Origin, ResultOriginLab)
	}
	if res.ExternalRef == nil || *res.ExternalRef != ref {
		t.Errorf("external ref = %v, want %q", res.ExternalRef, ref)
	}
	if res.VeterinarianID != nil {
		t.Error("lab result should not carry a veterinarian")
	}
}

func TestNewTreatment(t *testing.T) {
	pathologyID := types.NewID()
	tr, err := NewTreatment(types.NewID(), TreatmentMedication, "omeprazol 1mg/kg cada 24h", 7,
		time.Now().UTC(), &pathologyID, EfficacyGood, "")
	if err != nil {
		t.Fatalf("NewTreatment: %v", err)
	}
	if tr.Type != TreatmentMedication {
		t.Errorf("type = %q, want %q", tr.Type, TreatmentMedication)
	}
	if tr.Efficacy != EfficacyGood {
		t.Errorf("efficacy = %q, want %q", tr.Efficacy, EfficacyGood)
	}
	if tr.PathologyID == nil || *tr.PathologyID != pathologyID {
		t.Errorf("pathology = %v, want %s", tr.PathologyID, pathologyID)
	}

	if _, err := NewTreatment(types.NewID(), "", "reposo absoluto una semana", 7,
		time.Now().UTC(), nil, "", ""); err == nil {
		t.Error("missing treatment type should fail")
	}
}

func TestClinicalEventMeasurements(t *testing.T) {
	vetID := types.NewID()
	consultationID := types.NewID()
	e := NewClinicalEvent(types.NewID(), EventTriage, "Triaje registrado", nil).
		WithConsultation(consultationID).WithVeterinarian(vetID).WithAge(26).WithWeight(8.5)

	if e.ConsultationID == nil || *e.ConsultationID != consultationID {
		t.Errorf("consultation = %v, want %s", e.ConsultationID, consultationID)
	}
	if e.VeterinarianID == nil || *e.VeterinarianID != vetID {
		t.Errorf("veterinarian = %v, want %s", e.VeterinarianID, vetID)
	}
	if e.AgeMonths == nil || *e.AgeMonths != 26 {
		t.Errorf("age = %v, want 26", e.AgeMonths)
	}
	if e.WeightKg == nil || *e.WeightKg != 8.5 {
		t.Errorf("weight = %v, want 8.5", e.WeightKg)
	}
}

func TestParsers(t *testing.T) {
	if _, err := ParseUrgency("Urgentisimo"); err == nil {
		t.Error("bad urgency accepted")
	}
	if u, err := ParseUrgency("Critico"); err != nil || u != UrgencyCritical {
		t.Errorf("ParseUrgency(Critico) = %q, %v", u, err)
	}
	if p, err := ParsePriority(""); err != nil || p != PriorityNormal {
		t.Errorf("ParsePriority(empty) = %q, %v", p, err)
	}
	if p, err := ParsePriority("Urgente"); err != nil || p != PriorityUrgent {
		t.Errorf("ParsePriority(Urgente) = %q, %v", p, err)
	}
	if p, err := ParsePriority("Programable"); err != nil || p != PrioritySchedulable {
		t.Errorf("ParsePriority(Programable) = %q, %v", p, err)
	}
	if _, err := ParsePriority("Alta"); err == nil {
		t.Error("bad priority accepted")
	}
	if d, err := ParseDiagnosisType("Confirmado"); err != nil || d != DiagnosisConfirmed {
		t.Errorf("ParseDiagnosisType(Confirmado) = %q, %v", d, err)
	}
	if d, err := ParseDiagnosisType("Descartado"); err != nil || d != DiagnosisRuledOut {
		t.Errorf("ParseDiagnosisType(Descartado) = %q, %v", d, err)
	}
	if _, err := ParseDiagnosisType("Definitivo"); err == nil {
		t.Error("bad diagnosis type accepted")
	}
	if s, err := ParsePathologyState(""); err != nil || s != PathologyActive {
		t.Errorf("ParsePathologyState(empty) = %q, %v", s, err)
	}
	if s, err := ParsePathologyState("Curada"); err != nil || s != PathologyCured {
		t.Errorf("ParsePathologyState(Curada) = %q, %v", s, err)
	}
	if s, err := ParsePathologyState("En seguimiento"); err != nil || s != PathologyMonitored {
		t.Errorf("ParsePathologyState(En seguimiento) = %q, %v", s, err)
	}
	if tt, err := ParseTreatmentType("Quirurgico"); err != nil || tt != TreatmentSurgical {
		t.Errorf("ParseTreatmentType(Quirurgico) = %q, %v", tt, err)
	}
	if _, err := ParseTreatmentType(""); err == nil {
		t.Error("empty treatment type accepted")
	}
	if e, err := ParseEfficacy("Muy buena"); err != nil || e != EfficacyVeryGood {
		t.Errorf("ParseEfficacy(Muy buena) = %q, %v", e, err)
	}
	if e, err := ParseEfficacy(""); err != nil || e != "" {
		t.Errorf("ParseEfficacy(empty) = %q, %v", e, err)
	}
	if rt, err := ParseRequestType("Servicio programado"); err != nil || rt != RequestScheduled {
		t.Errorf("ParseRequestType(Servicio programado) = %q, %v", rt, err)
	}
	if _, err := ParseRequestType("Emergencia"); err == nil {
		t.Error("bad request type accepted")
	}
}
