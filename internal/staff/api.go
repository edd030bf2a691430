package staff

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/colitas-felices/clinic/internal/shared/auth"
	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

// VetRoutes exposes veterinarian profiles. Reads are open to any
// authenticated user since front desk and clinical flows both look up
// vets; updates need the personnel permission.
func (h *Handler) VetRoutes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListVets)
	r.Get("/disponibles", h.ListAvailableVets)
	r.Get("/cmvp/{code}", h.GetVetByCMVP)
	r.Get("/{vetID}", h.GetVet)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePermissions(auth.PermGestionarPersonal))
		r.Put("/{vetID}", h.UpdateVet)
	})

	return r
}

func (h *Handler) ReceptionistRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequirePermissions(auth.PermGestionarPersonal))

	r.Get("/", h.ListReceptionists)
	r.Get("/{recID}", h.GetReceptionist)
	r.Put("/{recID}", h.UpdateReceptionist)

	return r
}

func (h *Handler) AdministratorRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequirePermissions(auth.PermGestionarPersonal))

	r.Get("/", h.ListAdministrators)
	r.Get("/{admID}", h.GetAdministrator)
	r.Put("/{admID}", h.UpdateAdministrator)

	return r
}

type profileRequest struct {
	Nombre          string `json:"nombre"`
	ApellidoPaterno string `json:"apellido_paterno"`
	ApellidoMaterno string `json:"apellido_materno"`
	Email           string `json:"email"`
	Telefono        string `json:"telefono"`
	CodigoCMVP      string `json:"codigo_cmvp,omitempty"`
	EspecialidadID  string `json:"especialidad_id,omitempty"`
	Turno           string `json:"turno,omitempty"`
}

func (req profileRequest) name() types.PersonName {
	return types.PersonName{
		FirstName:    req.Nombre,
		PaternalName: req.ApellidoPaterno,
		MaternalName: req.ApellidoMaterno,
	}
}

// --- Veterinarians ---

func (h *Handler) ListVets(w http.ResponseWriter, r *http.Request) {
	filter := VetFilter{Search: r.URL.Query().Get("search")}
	if v := r.URL.Query().Get("especialidad_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("identificador de especialidad invalido"))
			return
		}
		filter.SpecialtyID = id
	}
	if v := r.URL.Query().Get("turno"); v != "" {
		shift, err := ParseShift(v)
		if err != nil {
			writeError(w, err)
			return
		}
		filter.Shift = shift
	}
	filter.Limit, filter.Offset = parsePagination(r)

	h.listVets(w, r, filter)
}

func (h *Handler) ListAvailableVets(w http.ResponseWriter, r *http.Request) {
	filter := VetFilter{OnlyFree: true}
	filter.Limit, filter.Offset = parsePagination(r)
	h.listVets(w, r, filter)
}

func (h *Handler) listVets(w http.ResponseWriter, r *http.Request, filter VetFilter) {
	vets, total, err := h.repo.ListVeterinarians(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  vets,
		"total": total,
	})
}

func (h *Handler) GetVet(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "vetID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de veterinario invalido"))
		return
	}
	v, err := h.repo.FindVeterinarian(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) GetVetByCMVP(w http.ResponseWriter, r *http.Request) {
	v, err := h.repo.FindVeterinarianByCMVP(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *Handler) UpdateVet(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "vetID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de veterinario invalido"))
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	v, err := h.repo.FindVeterinarian(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	person, err := NewPerson(req.name(), v.DNI.String(), req.Email, req.Telefono, string(v.Gender), v.BirthDate)
	if err != nil {
		writeError(w, err)
		return
	}
	shift, err := ParseShift(req.Turno)
	if err != nil {
		writeError(w, err)
		return
	}
	specialtyID, err := types.ParseID(req.EspecialidadID)
	if err != nil {
		writeError(w, errors.BadRequest("identificador de especialidad invalido"))
		return
	}

	v.Person = person
	v.Shift = shift
	v.SpecialtyID = specialtyID
	if req.CodigoCMVP != "" {
		v.CMVPCode = req.CodigoCMVP
	}
	v.UpdatedAt = time.Now().UTC()

	if err := h.repo.UpdateVeterinarian(r.Context(), v); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// --- Receptionists ---

func (h *Handler) ListReceptionists(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	recs, total, err := h.repo.ListReceptionists(r.Context(), r.URL.Query().Get("search"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  recs,
		"total": total,
	})
}

func (h *Handler) GetReceptionist(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "recID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de recepcionista invalido"))
		return
	}
	rec, err := h.repo.FindReceptionist(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handler) UpdateReceptionist(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "recID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de recepcionista invalido"))
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	rec, err := h.repo.FindReceptionist(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	person, err := NewPerson(req.name(), rec.DNI.String(), req.Email, req.Telefono, string(rec.Gender), rec.BirthDate)
	if err != nil {
		writeError(w, err)
		return
	}
	shift, err := ParseShift(req.Turno)
	if err != nil {
		writeError(w, err)
		return
	}

	rec.Person = person
	rec.Shift = shift
	rec.UpdatedAt = time.Now().UTC()

	if err := h.repo.UpdateReceptionist(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// --- Administrators ---

func (h *Handler) ListAdministrators(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	admins, total, err := h.repo.ListAdministrators(r.Context(), r.URL.Query().Get("search"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  admins,
		"total": total,
	})
}

func (h *Handler) GetAdministrator(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "admID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de administrador invalido"))
		return
	}
	adm, err := h.repo.FindAdministrator(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adm)
}

func (h *Handler) UpdateAdministrator(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "admID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de administrador invalido"))
		return
	}
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	adm, err := h.repo.FindAdministrator(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	person, err := NewPerson(req.name(), adm.DNI.String(), req.Email, req.Telefono, string(adm.Gender), adm.BirthDate)
	if err != nil {
		writeError(w, err)
		return
	}

	adm.Person = person
	adm.UpdatedAt = time.Now().UTC()

	if err := h.repo.UpdateAdministrator(r.Context(), adm); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, adm)
}

// --- Helpers ---

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
