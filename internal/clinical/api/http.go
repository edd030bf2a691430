package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/colitas-felices/clinic/internal/clinical/domain"
	"github.com/colitas-felices/clinic/internal/shared/auth"
	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/events"
	"github.com/colitas-felices/clinic/internal/shared/metrics"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

// Handler serves the clinical workflow endpoints: attention requests,
// triage, consultations, service orders, appointments and histories.
type Handler struct {
	repo domain.Repository
	bus  events.EventBus
}

func NewHandler(repo domain.Repository, bus events.EventBus) *Handler {
	return &Handler{repo: repo, bus: bus}
}

// --- Attention requests ---

func (h *Handler) RequestRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListRequests)
	r.Get("/stats", h.GetWorkflowStats)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePermissions(auth.PermRegistrarSolicitud))
		r.Post("/", h.CreateRequest)
	})

	r.Route("/{requestID}", func(r chi.Router) {
		r.Get("/", h.GetRequest)
		r.Get("/triaje", h.GetTriageByRequest)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermissions(auth.PermRegistrarSolicitud))
			r.Post("/cancelar", h.CancelRequest)
		})
	})

	return r
}

type requestRequest struct {
	MascotaID     types.ID `json:"mascota_id"`
	TipoSolicitud string   `json:"tipo_solicitud"`
	Motivo        string   `json:"motivo"`
}

func (h *Handler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	var req requestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	requestType, err := domain.ParseRequestType(req.TipoSolicitud)
	if err != nil {
		writeError(w, err)
		return
	}

	var receptionistID *types.ID
	if actor, ok := auth.GetUser(r.Context()); ok && actor.Role == auth.RoleRecepcionista && !actor.ProfileID.IsZero() {
		receptionistID = &actor.ProfileID
	}

	attention, err := domain.NewAttentionRequest(req.MascotaID, requestType, req.Motivo, receptionistID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.CreateRequest(r.Context(), attention); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordAttentionRequest(string(attention.Status))
	h.publishActed(r, events.NewEvent("solicitud.registrada", "clinical", attention))
	writeJSON(w, http.StatusCreated, attention)
}

func (h *Handler) ListRequests(w http.ResponseWriter, r *http.Request) {
	filter := domain.RequestFilter{
		Status: domain.RequestStatus(r.URL.Query().Get("estado")),
	}
	if v := r.URL.Query().Get("mascota_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("identificador de mascota invalido"))
			return
		}
		filter.PetID = id
	}
	filter.Limit, filter.Offset = parsePagination(r)

	requests, total, err := h.repo.ListRequests(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"solicitudes": requests,
		"total":       total,
	})
}

func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de solicitud invalido"))
		return
	}
	req, err := h.repo.FindRequest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de solicitud invalido"))
		return
	}
	req, err := h.repo.FindRequest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := req.Cancel(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.UpdateRequestStatus(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordAttentionRequest(string(req.Status))
	h.publishActed(r, events.NewEvent("solicitud.cancelada", "clinical", req))
	writeJSON(w, http.StatusOK, req)
}

func (h *Handler) GetWorkflowStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Triage ---

func (h *Handler) TriageRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListTriages)
	r.Get("/{triageID}", h.GetTriage)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePermissions(auth.PermRealizarTriaje))
		r.Post("/", h.CreateTriage)
	})

	return r
}

type triageRequest struct {
	SolicitudID   types.ID `json:"solicitud_id"`
	VeterinarioID types.ID `json:"veterinario_id"`
	domain.Vitals
	CondicionCorporal     string `json:"condicion_corporal"`
	ClasificacionUrgencia string `json:"clasificacion_urgencia"`
}

func (h *Handler) CreateTriage(w http.ResponseWriter, r *http.Request) {
	var req triageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	vetID := req.VeterinarioID
	if vetID.IsZero() {
		if actor, ok := auth.GetUser(r.Context()); ok {
			vetID = actor.ProfileID
		}
	}

	urgency, err := domain.ParseUrgency(req.ClasificacionUrgencia)
	if err != nil {
		writeError(w, err)
		return
	}
	bodyCondition, err := domain.ParseBodyCondition(req.CondicionCorporal)
	if err != nil {
		writeError(w, err)
		return
	}

	attention, err := h.repo.FindRequest(r.Context(), req.SolicitudID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := attention.BeginTriage(); err != nil {
		writeError(w, err)
		return
	}

	triage, err := domain.NewTriage(req.SolicitudID, vetID, req.Vitals, bodyCondition, urgency)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.CreateTriage(r.Context(), triage, attention); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordTriage(string(triage.Urgency))
	h.publishActed(r, events.NewEvent("triaje.registrado", "clinical", triage))
	writeJSON(w, http.StatusCreated, triage)
}

func (h *Handler) ListTriages(w http.ResponseWriter, r *http.Request) {
	urgency := domain.Urgency(r.URL.Query().Get("urgencia"))
	limit, offset := parsePagination(r)

	triages, total, err := h.repo.ListTriages(r.Context(), urgency, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"triajes": triages,
		"total":   total,
	})
}

func (h *Handler) GetTriage(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "triageID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de triaje invalido"))
		return
	}
	triage, err := h.repo.FindTriage(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, triage)
}

func (h *Handler) GetTriageByRequest(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de solicitud invalido"))
		return
	}
	triage, err := h.repo.FindTriageByRequest(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, triage)
}

// --- Consultations ---

func (h *Handler) ConsultationRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListConsultations)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePermissions(auth.PermRealizarConsultas))
		r.Post("/", h.CreateConsultation)
	})

	r.Route("/{consultationID}", func(r chi.Router) {
		r.Get("/", h.GetConsultation)
		r.Get("/completa", h.GetConsultationFull)
		r.Get("/diagnosticos", h.ListDiagnoses)
		r.Get("/tratamientos", h.ListTreatments)
		r.Get("/servicios", h.ListOrders)

		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermissions(auth.PermRealizarConsultas))
			r.Post("/finalizar", h.FinalizeConsultation)
			r.Post("/diagnosticos", h.AddDiagnosis)
			r.Post("/tratamientos", h.AddTreatment)
			r.Post("/servicios", h.CreateOrder)
		})
	})

	return r
}

type consultationRequest struct {
	TriajeID      types.ID `json:"triaje_id"`
	VeterinarioID types.ID `json:"veterinario_id"`
	Motivo        string   `json:"motivo"`
	TipoConsulta  string   `json:"tipo_consulta"`
}

func (h *Handler) CreateConsultation(w http.ResponseWriter, r *http.Request) {
	var req consultationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	vetID := req.VeterinarioID
	if vetID.IsZero() {
		if actor, ok := auth.GetUser(r.Context()); ok {
			vetID = actor.ProfileID
		}
	}

	triage, err := h.repo.FindTriage(r.Context(), req.TriajeID)
	if err != nil {
		writeError(w, err)
		return
	}
	attention, err := h.repo.FindRequest(r.Context(), triage.RequestID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := attention.BeginAttention(); err != nil {
		writeError(w, err)
		return
	}

	consultation, err := domain.NewConsultation(req.TriajeID, vetID, req.Motivo, req.TipoConsulta)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.CreateConsultation(r.Context(), consultation, attention); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordConsultation("creada")
	h.publishActed(r, events.NewEvent("consulta.creada", "clinical", consultation))
	writeJSON(w, http.StatusCreated, consultation)
}

func (h *Handler) ListConsultations(w http.ResponseWriter, r *http.Request) {
	var vetID types.ID
	if v := r.URL.Query().Get("veterinario_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("identificador de veterinario invalido"))
			return
		}
		vetID = id
	}
	var since time.Time
	if v := r.URL.Query().Get("desde"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, errors.BadRequest("fecha invalida, use el formato AAAA-MM-DD"))
			return
		}
		since = t
	}
	limit, offset := parsePagination(r)

	consultations, total, err := h.repo.ListConsultationsByVet(r.Context(), vetID, since, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"consultas": consultations,
		"total":     total,
	})
}

func (h *Handler) GetConsultation(w http.ResponseWriter, r *http.Request) {
	consultation, err := h.consultationFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, consultation)
}

// GetConsultationFull returns the consultation with its triage,
// diagnoses, treatments and requested services in one response.
func (h *Handler) GetConsultationFull(w http.ResponseWriter, r *http.Request) {
	consultation, err := h.consultationFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	triage, err := h.repo.FindTriage(r.Context(), consultation.TriageID)
	if err != nil {
		writeError(w, err)
		return
	}
	diagnoses, err := h.repo.ListDiagnoses(r.Context(), consultation.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	treatments, err := h.repo.ListTreatments(r.Context(), consultation.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	orders, err := h.repo.ListOrders(r.Context(), consultation.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"consulta":              consultation,
		"triaje":                triage,
		"diagnosticos":          diagnoses,
		"tratamientos":          treatments,
		"servicios_solicitados": orders,
	})
}

type finalizeRequest struct {
	Observaciones string `json:"observaciones"`
}

func (h *Handler) FinalizeConsultation(w http.ResponseWriter, r *http.Request) {
	consultation, err := h.consultationFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}
	if err := consultation.Finish(req.Observaciones); err != nil {
		writeError(w, err)
		return
	}

	triage, err := h.repo.FindTriage(r.Context(), consultation.TriageID)
	if err != nil {
		writeError(w, err)
		return
	}
	attention, err := h.repo.FindRequest(r.Context(), triage.RequestID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := attention.Complete(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.FinalizeConsultation(r.Context(), consultation, attention); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordConsultation("finalizada")
	h.publishActed(r, events.NewEvent("consulta.finalizada", "clinical", consultation))
	writeJSON(w, http.StatusOK, consultation)
}

func (h *Handler) consultationFromPath(r *http.Request) (*domain.Consultation, error) {
	id, err := types.ParseID(chi.URLParam(r, "consultationID"))
	if err != nil {
		return nil, errors.BadRequest("identificador de consulta invalido")
	}
	return h.repo.FindConsultation(r.Context(), id)
}

// --- Diagnoses and treatments ---

type diagnosisRequest struct {
	PatologiaID     types.ID `json:"patologia_id"`
	TipoDiagnostico string   `json:"tipo_diagnostico"`
	EstadoPatologia string   `json:"estado_patologia"`
	Detalle         string   `json:"detalle"`
}

func (h *Handler) AddDiagnosis(w http.ResponseWriter, r *http.Request) {
	consultation, err := h.consultationFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req diagnosisRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	diagType, err := domain.ParseDiagnosisType(req.TipoDiagnostico)
	if err != nil {
		writeError(w, err)
		return
	}
	state, err := domain.ParsePathologyState(req.EstadoPatologia)
	if err != nil {
		writeError(w, err)
		return
	}

	diagnosis, err := domain.NewDiagnosis(consultation.ID, req.PatologiaID, diagType, state, req.Detalle)
	if err != nil {
		writeError(w, err)
		return
	}

	petID, err := h.repo.PetForTriage(r.Context(), consultation.TriageID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.AddDiagnosis(r.Context(), diagnosis, petID); err != nil {
		writeError(w, err)
		return
	}

	h.publishActed(r, events.NewEvent("diagnostico.registrado", "clinical", diagnosis))
	writeJSON(w, http.StatusCreated, diagnosis)
}

func (h *Handler) ListDiagnoses(w http.ResponseWriter, r *http.Request) {
	consultation, err := h.consultationFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	diagnoses, err := h.repo.ListDiagnoses(r.Context(), consultation.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, diagnoses)
}

type treatmentRequest struct {
	PatologiaID         *types.ID `json:"patologia_id"`
	TipoTratamiento     string    `json:"tipo_tratamiento"`
	EficaciaTratamiento string    `json:"eficacia_tratamiento"`
	Descripcion         string    `json:"descripcion"`
	DuracionDias        int       `json:"duracion_dias"`
	FechaInicio         string    `json:"fecha_inicio"`
	Observaciones       string    `json:"observaciones"`
}

func (h *Handler) AddTreatment(w http.ResponseWriter, r *http.Request) {
	consultation, err := h.consultationFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req treatmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	treatmentType, err := domain.ParseTreatmentType(req.TipoTratamiento)
	if err != nil {
		writeError(w, err)
		return
	}
	efficacy, err := domain.ParseEfficacy(req.EficaciaTratamiento)
	if err != nil {
		writeError(w, err)
		return
	}

	startDate := time.Now().UTC()
	if req.FechaInicio != "" {
		t, err := time.Parse("2006-01-02", req.FechaInicio)
		if err != nil {
			writeError(w, errors.BadRequest("fecha de inicio invalida, use el formato AAAA-MM-DD"))
			return
		}
		startDate = t
	}

	treatment, err := domain.NewTreatment(consultation.ID, treatmentType, req.Descripcion, req.DuracionDias, startDate, req.PatologiaID, efficacy, req.Observaciones)
	if err != nil {
		writeError(w, err)
		return
	}

	petID, err := h.repo.PetForTriage(r.Context(), consultation.TriageID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.AddTreatment(r.Context(), treatment, petID); err != nil {
		writeError(w, err)
		return
	}

	h.publishActed(r, events.NewEvent("tratamiento.indicado", "clinical", treatment))
	writeJSON(w, http.StatusCreated, treatment)
}

func (h *Handler) ListTreatments(w http.ResponseWriter, r *http.Request) {
	consultation, err := h.consultationFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	treatments, err := h.repo.ListTreatments(r.Context(), consultation.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, treatments)
}

// --- Service orders ---

func (h *Handler) OrderRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/abiertos", h.ListOpenOrders)
	r.Route("/{orderID}", func(r chi.Router) {
		r.Get("/", h.GetOrder)
		r.Get("/resultados", h.ListResults)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermissions(auth.PermRealizarConsultas))
			r.Post("/cancelar", h.CancelOrder)
			r.Post("/resultados", h.CreateResult)
		})
	})

	return r
}

type orderRequest struct {
	ServicioID types.ID `json:"servicio_id"`
	Prioridad  string   `json:"prioridad"`
	Comentario string   `json:"comentario"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	consultation, err := h.consultationFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	priority, err := domain.ParsePriority(req.Prioridad)
	if err != nil {
		writeError(w, err)
		return
	}
	order, err := domain.NewServiceOrder(consultation.ID, req.ServicioID, priority, req.Comentario)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.CreateOrder(r.Context(), order); err != nil {
		writeError(w, err)
		return
	}

	h.publishActed(r, events.NewEvent("servicio.solicitado", "clinical", order))
	writeJSON(w, http.StatusCreated, order)
}

func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	consultation, err := h.consultationFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	orders, err := h.repo.ListOrders(r.Context(), consultation.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *Handler) ListOpenOrders(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	orders, total, err := h.repo.ListOpenOrders(r.Context(), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"servicios": orders,
		"total":     total,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := order.Cancel(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.UpdateOrderStatus(r.Context(), order); err != nil {
		writeError(w, err)
		return
	}

	h.publishActed(r, events.NewEvent("servicio.cancelado", "clinical", order))
	writeJSON(w, http.StatusOK, order)
}

func (h *Handler) orderFromPath(r *http.Request) (*domain.ServiceOrder, error) {
	id, err := types.ParseID(chi.URLParam(r, "orderID"))
	if err != nil {
		return nil, errors.BadRequest("identificador de servicio solicitado invalido")
	}
	return h.repo.FindOrder(r.Context(), id)
}

// --- Results ---

type resultRequest struct {
	Descripcion string  `json:"descripcion"`
	Archivo     *string `json:"archivo"`
}

func (h *Handler) CreateResult(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req resultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	var vetID *types.ID
	if actor, ok := auth.GetUser(r.Context()); ok && !actor.ProfileID.IsZero() {
		vetID = &actor.ProfileID
	}

	result, err := domain.NewServiceResult(order.ID, vetID, req.Descripcion, req.Archivo)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := order.Complete(); err != nil {
		writeError(w, err)
		return
	}

	petID, err := h.repo.PetForOrder(r.Context(), order.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.CreateResult(r.Context(), result, order, petID); err != nil {
		writeError(w, err)
		return
	}

	h.publishActed(r, events.NewEvent("resultado.registrado", "clinical", result))
	writeJSON(w, http.StatusCreated, result)
}

func (h *Handler) ListResults(w http.ResponseWriter, r *http.Request) {
	order, err := h.orderFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	results, err := h.repo.ListResults(r.Context(), order.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// --- Appointments ---

func (h *Handler) AppointmentRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListAppointments)
	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePermissions(auth.PermGestionarCitas))
		r.Post("/", h.CreateAppointment)
	})

	r.Route("/{appointmentID}", func(r chi.Router) {
		r.Get("/", h.GetAppointment)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermissions(auth.PermGestionarCitas))
			r.Post("/atender", h.AttendAppointment)
			r.Post("/cancelar", h.CancelAppointment)
		})
	})

	return r
}

type appointmentRequest struct {
	ServicioSolicitadoID types.ID `json:"servicio_solicitado_id"`
	VeterinarioID        types.ID `json:"veterinario_id"`
	Fecha                string   `json:"fecha"`
	Hora                 string   `json:"hora"`
	RequiereAyuno        bool     `json:"requiere_ayuno"`
	Observaciones        string   `json:"observaciones"`
}

func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	date, err := time.Parse("2006-01-02", req.Fecha)
	if err != nil {
		writeError(w, errors.BadRequest("fecha invalida, use el formato AAAA-MM-DD"))
		return
	}

	order, err := h.repo.FindOrder(r.Context(), req.ServicioSolicitadoID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := order.Schedule(); err != nil {
		writeError(w, err)
		return
	}

	appointment, err := domain.NewAppointment(order.ID, req.VeterinarioID, date, req.Hora, req.RequiereAyuno, req.Observaciones)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.CreateAppointment(r.Context(), appointment, order); err != nil {
		writeError(w, err)
		return
	}

	metrics.RecordAppointment(string(appointment.Status))
	h.publishActed(r, events.NewEvent("cita.programada", "clinical", appointment))
	writeJSON(w, http.StatusCreated, appointment)
}

func (h *Handler) ListAppointments(w http.ResponseWriter, r *http.Request) {
	filter := domain.AppointmentFilter{
		Status: domain.AppointmentStatus(r.URL.Query().Get("estado")),
	}
	if v := r.URL.Query().Get("fecha"); v != "" {
		date, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, errors.BadRequest("fecha invalida, use el formato AAAA-MM-DD"))
			return
		}
		filter.Date = date
	}
	if v := r.URL.Query().Get("veterinario_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("identificador de veterinario invalido"))
			return
		}
		filter.VeterinarianID = id
	}
	filter.Limit, filter.Offset = parsePagination(r)

	appointments, total, err := h.repo.ListAppointments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"citas": appointments,
		"total": total,
	})
}

func (h *Handler) GetAppointment(w http.ResponseWriter, r *http.Request) {
	appointment, err := h.appointmentFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appointment)
}

func (h *Handler) AttendAppointment(w http.ResponseWriter, r *http.Request) {
	appointment, err := h.appointmentFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := appointment.MarkAttended(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.UpdateAppointmentStatus(r.Context(), appointment); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.repo.FindOrder(r.Context(), appointment.ServiceOrderID)
	if err != nil {
		writeError(w, err)
		return
	}
	if startErr := order.Start(); startErr == nil {
		if err := h.repo.UpdateOrderStatus(r.Context(), order); err != nil {
			writeError(w, err)
			return
		}
	}

	metrics.RecordAppointment(string(appointment.Status))
	h.publishActed(r, events.NewEvent("cita.atendida", "clinical", appointment))
	writeJSON(w, http.StatusOK, appointment)
}

// CancelAppointment cancels the appointment and its service order.
func (h *Handler) CancelAppointment(w http.ResponseWriter, r *http.Request) {
	appointment, err := h.appointmentFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := appointment.Cancel(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.UpdateAppointmentStatus(r.Context(), appointment); err != nil {
		writeError(w, err)
		return
	}

	order, err := h.repo.FindOrder(r.Context(), appointment.ServiceOrderID)
	switch {
	case err == nil:
		// An already closed order stays as it is.
		if cancelErr := order.Cancel(); cancelErr == nil {
			if err := h.repo.UpdateOrderStatus(r.Context(), order); err != nil {
				writeError(w, err)
				return
			}
		}
	case !errors.IsNotFound(err):
		writeError(w, err)
		return
	}

	metrics.RecordAppointment(string(appointment.Status))
	h.publishActed(r, events.NewEvent("cita.cancelada", "clinical", appointment))
	writeJSON(w, http.StatusOK, appointment)
}

func (h *Handler) appointmentFromPath(r *http.Request) (*domain.Appointment, error) {
	id, err := types.ParseID(chi.URLParam(r, "appointmentID"))
	if err != nil {
		return nil, errors.BadRequest("identificador de cita invalido")
	}
	return h.repo.FindAppointment(r.Context(), id)
}

// --- Medical history ---

func (h *Handler) HistoryRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequirePermissions(auth.PermVerHistorial))

	r.Get("/mascota/{petID}", h.GetHistory)
	r.Get("/consulta/{consultationID}", h.GetConsultationEvents)

	return r
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "petID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de mascota invalido"))
		return
	}
	limit, offset := parsePagination(r)
	history, eventList, total, err := h.repo.HistoryForPet(r.Context(), id, limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"historial": history,
		"eventos":   eventList,
		"total":     total,
	})
}

func (h *Handler) GetConsultationEvents(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "consultationID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de consulta invalido"))
		return
	}
	eventList, err := h.repo.EventsForConsultation(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"eventos": eventList,
		"total":   len(eventList),
	})
}

// --- Helpers ---

func (h *Handler) publish(r *http.Request, event events.Event) {
	if h.bus == nil {
		return
	}
	_ = h.bus.Publish(r.Context(), event)
}

func (h *Handler) publishActed(r *http.Request, event events.Event) {
	if actor, ok := auth.GetUser(r.Context()); ok {
		event = event.WithActor(actor.ID, actor.Role)
	}
	h.publish(r, event)
}

func parsePagination(r *http.Request) (limit, offset int) {
	limit = 20
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > 100 {
		limit = 100
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "error interno del servidor"})
}
