package pet

import (
	"encoding/json"
	"net/http"
	"strconv"

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

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequirePermissions(auth.PermGestionarMascotas))

	r.Get("/", h.List)
	r.Post("/", h.Create)

	r.Route("/{petID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Put("/", h.Update)
		r.Delete("/", h.Delete)

		r.Route("/propietarios", func(r chi.Router) {
			r.Get("/", h.ListOwners)
			r.Post("/", h.LinkOwner)
			r.Delete("/{clientID}", h.UnlinkOwner)
			r.Post("/transferir", h.TransferOwner)
		})
	})

	return r
}

type petRequest struct {
	Nombre       string  `json:"nombre"`
	Sexo         string  `json:"sexo"`
	Color        string  `json:"color"`
	EdadAnios    int     `json:"edad_anios"`
	EdadMeses    int     `json:"edad_meses"`
	Esterilizado bool    `json:"esterilizado"`
	Imagen       *string `json:"imagen"`
	RazaID       string  `json:"raza_id"`
	ClienteID    string  `json:"cliente_id"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req petRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	breedID, err := types.ParseID(req.RazaID)
	if err != nil {
		writeError(w, errors.BadRequest("identificador de raza invalido"))
		return
	}
	ownerID, err := types.ParseID(req.ClienteID)
	if err != nil {
		writeError(w, errors.BadRequest("identificador de cliente invalido"))
		return
	}

	p, err := New(req.Nombre, req.Sexo, req.Color, req.EdadAnios, req.EdadMeses, req.Esterilizado, req.Imagen, breedID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.Create(r.Context(), p, ownerID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{Search: r.URL.Query().Get("search")}
	if v := r.URL.Query().Get("cliente_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("identificador de cliente invalido"))
			return
		}
		filter.ClientID = id
	}
	if v := r.URL.Query().Get("raza_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("identificador de raza invalido"))
			return
		}
		filter.BreedID = id
	}
	filter.Limit, filter.Offset = parsePagination(r)

	pets, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  pets,
		"total": total,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "petID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de mascota invalido"))
		return
	}
	p, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "petID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de mascota invalido"))
		return
	}
	var req petRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}
	breedID, err := types.ParseID(req.RazaID)
	if err != nil {
		writeError(w, errors.BadRequest("identificador de raza invalido"))
		return
	}

	p, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := p.Update(req.Nombre, req.Color, req.EdadAnios, req.EdadMeses, req.Esterilizado, req.Imagen, breedID); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.Update(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "petID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de mascota invalido"))
		return
	}
	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListOwners(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "petID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de mascota invalido"))
		return
	}
	owners, err := h.repo.Owners(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": owners})
}

func (h *Handler) LinkOwner(w http.ResponseWriter, r *http.Request) {
	petID, err := types.ParseID(chi.URLParam(r, "petID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de mascota invalido"))
		return
	}
	var req struct {
		ClienteID string `json:"cliente_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}
	clientID, err := types.ParseID(req.ClienteID)
	if err != nil {
		writeError(w, errors.BadRequest("identificador de cliente invalido"))
		return
	}
	if err := h.repo.LinkOwner(r.Context(), petID, clientID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) UnlinkOwner(w http.ResponseWriter, r *http.Request) {
	petID, err := types.ParseID(chi.URLParam(r, "petID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de mascota invalido"))
		return
	}
	clientID, err := types.ParseID(chi.URLParam(r, "clientID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de cliente invalido"))
		return
	}
	if err := h.repo.UnlinkOwner(r.Context(), petID, clientID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) TransferOwner(w http.ResponseWriter, r *http.Request) {
	petID, err := types.ParseID(chi.URLParam(r, "petID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de mascota invalido"))
		return
	}
	var req struct {
		DeClienteID string `json:"de_cliente_id"`
		AClienteID  string `json:"a_cliente_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}
	fromID, err := types.ParseID(req.DeClienteID)
	if err != nil {
		writeError(w, errors.BadRequest("identificador de cliente origen invalido"))
		return
	}
	toID, err := types.ParseID(req.AClienteID)
	if err != nil {
		writeError(w, errors.BadRequest("identificador de cliente destino invalido"))
		return
	}
	if err := h.repo.TransferOwner(r.Context(), petID, fromID, toID); err != nil {
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
