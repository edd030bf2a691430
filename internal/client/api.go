package client

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/colitas-felices/clinic/internal/shared/auth"
	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

// Handler provides HTTP handlers for client management.
type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequirePermissions(auth.PermGestionarClientes))

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/dni/{dni}", h.GetByDNI)

	r.Route("/{clientID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)
	})

	return r
}

type clientRequest struct {
	Nombre          string `json:"nombre"`
	ApellidoPaterno string `json:"apellido_paterno"`
	ApellidoMaterno string `json:"apellido_materno"`
	DNI             string `json:"dni"`
	Email           string `json:"email"`
	Telefono        string `json:"telefono"`
	Direccion       string `json:"direccion"`
}

func (req clientRequest) name() types.PersonName {
	return types.PersonName{
		FirstName:    req.Nombre,
		PaternalName: req.ApellidoPaterno,
		MaternalName: req.ApellidoMaterno,
	}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	c, err := New(req.name(), req.DNI, req.Email, req.Telefono, req.Direccion)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.Create(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Search: r.URL.Query().Get("search")}
	filter.Limit, filter.Offset = parsePagination(r)

	clients, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  clients,
		"total": total,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de cliente invalido"))
		return
	}
	c, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) GetByDNI(w http.ResponseWriter, r *http.Request) {
	dni, err := types.ParseDNI(chi.URLParam(r, "dni"))
	if err != nil {
		writeError(w, errors.BadRequest("DNI invalido"))
		return
	}
	c, err := h.repo.FindByDNI(r.Context(), dni)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de cliente invalido"))
		return
	}
	var req clientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	c, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := c.Update(req.name(), req.Email, req.Telefono, req.Direccion); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.Update(r.Context(), c); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de cliente invalido"))
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
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
