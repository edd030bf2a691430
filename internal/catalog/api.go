package catalog

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

// Routes mounts every catalog. Reads are open to authenticated users so
// forms can populate dropdowns; mutations need the catalog permission.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Mount("/tipos-animal", h.entryRoutes(TableAnimalTypes))
	r.Mount("/especialidades", h.entryRoutes(TableSpecialties))
	r.Mount("/tipos-servicio", h.entryRoutes(TableServiceTypes))

	r.Route("/razas", func(r chi.Router) {
		r.Get("/", h.ListBreeds)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermissions(auth.PermGestionarCatalogos))
			r.Post("/", h.CreateBreed)
			r.Put("/{breedID}", h.UpdateBreed)
			r.Delete("/{breedID}", h.DeleteBreed)
		})
	})

	r.Route("/servicios", func(r chi.Router) {
		r.Get("/", h.ListServices)
		r.Get("/stats", h.GetServiceStats)
		r.Get("/{serviceID}", h.GetService)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermissions(auth.PermGestionarCatalogos))
			r.Post("/", h.CreateService)
			r.Put("/{serviceID}", h.UpdateService)
			r.Post("/{serviceID}/activar", h.ActivateService)
			r.Post("/{serviceID}/desactivar", h.DeactivateService)
			r.Patch("/{serviceID}/precio", h.ChangeServicePrice)
		})
	})

	r.Route("/patologias", func(r chi.Router) {
		r.Get("/", h.ListPathologies)
		r.Get("/{pathologyID}", h.GetPathology)
		r.Group(func(r chi.Router) {
			r.Use(auth.RequirePermissions(auth.PermGestionarCatalogos))
			r.Post("/", h.CreatePathology)
			r.Put("/{pathologyID}", h.UpdatePathology)
			r.Delete("/{pathologyID}", h.DeletePathology)
		})
	})

	return r
}

// --- Simple catalogs ---

func (h *Handler) entryRoutes(table string) chi.Router {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		entries, err := h.repo.ListEntries(req.Context(), table)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": entries})
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequirePermissions(auth.PermGestionarCatalogos))

		r.Post("/", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Descripcion string `json:"descripcion"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
				return
			}
			e, err := NewEntry(body.Descripcion)
			if err != nil {
				writeError(w, err)
				return
			}
			if err := h.repo.CreateEntry(req.Context(), table, e); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusCreated, e)
		})

		r.Put("/{entryID}", func(w http.ResponseWriter, req *http.Request) {
			id, err := types.ParseID(chi.URLParam(req, "entryID"))
			if err != nil {
				writeError(w, errors.BadRequest("identificador invalido"))
				return
			}
			var body struct {
				Descripcion string `json:"descripcion"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
				return
			}
			e, err := NewEntry(body.Descripcion)
			if err != nil {
				writeError(w, err)
				return
			}
			e.ID = id
			if err := h.repo.UpdateEntry(req.Context(), table, e); err != nil {
				writeError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, e)
		})

		r.Delete("/{entryID}", func(w http.ResponseWriter, req *http.Request) {
			id, err := types.ParseID(chi.URLParam(req, "entryID"))
			if err != nil {
				writeError(w, errors.BadRequest("identificador invalido"))
				return
			}
			if err := h.repo.DeleteEntry(req.Context(), table, id); err != nil {
				writeError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	})

	return r
}

// --- Breeds ---

type breedRequest struct {
	Nombre       string `json:"nombre"`
	TipoAnimalID string `json:"tipo_animal_id"`
}

func (h *Handler) CreateBreed(w http.ResponseWriter, r *http.Request) {
	var req breedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}
	animalTypeID, err := types.ParseID(req.TipoAnimalID)
	if err != nil {
		writeError(w, errors.BadRequest("identificador de tipo de animal invalido"))
		return
	}
	b, err := NewBreed(req.Nombre, animalTypeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.CreateBreed(r.Context(), b); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) ListBreeds(w http.ResponseWriter, r *http.Request) {
	var animalTypeID types.ID
	if v := r.URL.Query().Get("tipo_animal_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("identificador de tipo de animal invalido"))
			return
		}
		animalTypeID = id
	}
	breeds, err := h.repo.ListBreeds(r.Context(), animalTypeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": breeds})
}

func (h *Handler) UpdateBreed(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "breedID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de raza invalido"))
		return
	}
	var req breedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}
	animalTypeID, err := types.ParseID(req.TipoAnimalID)
	if err != nil {
		writeError(w, errors.BadRequest("identificador de tipo de animal invalido"))
		return
	}
	b, err := NewBreed(req.Nombre, animalTypeID)
	if err != nil {
		writeError(w, err)
		return
	}
	b.ID = id
	if err := h.repo.UpdateBreed(r.Context(), b); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) DeleteBreed(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "breedID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de raza invalido"))
		return
	}
	if err := h.repo.DeleteBreed(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Services ---

type serviceRequest struct {
	Nombre         string  `json:"nombre"`
	Descripcion    string  `json:"descripcion"`
	Precio         float64 `json:"precio"`
	TipoServicioID string  `json:"tipo_servicio_id"`
}

func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}
	serviceTypeID, err := types.ParseID(req.TipoServicioID)
	if err != nil {
		writeError(w, errors.BadRequest("identificador de tipo de servicio invalido"))
		return
	}
	s, err := NewService(req.Nombre, req.Descripcion, req.Precio, serviceTypeID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.CreateService(r.Context(), s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	filter := ServiceFilter{
		Search:     r.URL.Query().Get("search"),
		OnlyActive: r.URL.Query().Get("activo") == "true",
	}
	if v := r.URL.Query().Get("tipo_servicio_id"); v != "" {
		id, err := types.ParseID(v)
		if err != nil {
			writeError(w, errors.BadRequest("identificador de tipo de servicio invalido"))
			return
		}
		filter.ServiceTypeID = id
	}
	filter.Limit, filter.Offset = parsePagination(r)

	services, total, err := h.repo.ListServices(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  services,
		"total": total,
	})
}

func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "serviceID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de servicio invalido"))
		return
	}
	s, err := h.repo.FindService(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "serviceID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de servicio invalido"))
		return
	}
	var req serviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}
	serviceTypeID, err := types.ParseID(req.TipoServicioID)
	if err != nil {
		writeError(w, errors.BadRequest("identificador de tipo de servicio invalido"))
		return
	}

	s, err := h.repo.FindService(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	updated, err := NewService(req.Nombre, req.Descripcion, req.Precio, serviceTypeID)
	if err != nil {
		writeError(w, err)
		return
	}
	updated.ID = s.ID
	updated.Active = s.Active
	updated.CreatedAt = s.CreatedAt

	if err := h.repo.UpdateService(r.Context(), updated); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) ActivateService(w http.ResponseWriter, r *http.Request) {
	h.setServiceActive(w, r, true)
}

func (h *Handler) DeactivateService(w http.ResponseWriter, r *http.Request) {
	h.setServiceActive(w, r, false)
}

func (h *Handler) setServiceActive(w http.ResponseWriter, r *http.Request, active bool) {
	id, err := types.ParseID(chi.URLParam(r, "serviceID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de servicio invalido"))
		return
	}
	s, err := h.repo.FindService(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	s.Active = active
	if err := h.repo.UpdateService(r.Context(), s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) ChangeServicePrice(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "serviceID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de servicio invalido"))
		return
	}
	var req struct {
		Precio float64 `json:"precio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}
	s, err := h.repo.FindService(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.ChangePrice(req.Precio); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.UpdateService(r.Context(), s); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *Handler) GetServiceStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.ServiceStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// --- Pathologies ---

type pathologyRequest struct {
	Nombre          string `json:"nombre"`
	Descripcion     string `json:"descripcion"`
	EspecieAfectada string `json:"especie_afectada"`
	Gravedad        string `json:"gravedad"`
	EsCronica       bool   `json:"es_cronica"`
	EsContagiosa    bool   `json:"es_contagiosa"`
}

func (h *Handler) CreatePathology(w http.ResponseWriter, r *http.Request) {
	var req pathologyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}
	p, err := NewPathology(req.Nombre, req.Descripcion, req.EspecieAfectada, req.Gravedad, req.EsCronica, req.EsContagiosa)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.CreatePathology(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *Handler) ListPathologies(w http.ResponseWriter, r *http.Request) {
	filter := PathologyFilter{
		Search:   r.URL.Query().Get("search"),
		Species:  r.URL.Query().Get("especie"),
		Severity: r.URL.Query().Get("gravedad"),
	}
	if v := r.URL.Query().Get("cronica"); v != "" {
		b := v == "true"
		filter.Chronic = &b
	}
	if v := r.URL.Query().Get("contagiosa"); v != "" {
		b := v == "true"
		filter.Contagious = &b
	}
	filter.Limit, filter.Offset = parsePagination(r)

	pathologies, total, err := h.repo.ListPathologies(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  pathologies,
		"total": total,
	})
}

func (h *Handler) GetPathology(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "pathologyID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de patologia invalido"))
		return
	}
	p, err := h.repo.FindPathology(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) UpdatePathology(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "pathologyID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de patologia invalido"))
		return
	}
	var req pathologyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}
	p, err := NewPathology(req.Nombre, req.Descripcion, req.EspecieAfectada, req.Gravedad, req.EsCronica, req.EsContagiosa)
	if err != nil {
		writeError(w, err)
		return
	}
	p.ID = id
	if err := h.repo.UpdatePathology(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *Handler) DeletePathology(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "pathologyID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de patologia invalido"))
		return
	}
	if err := h.repo.DeletePathology(r.Context(), id); err != nil {
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
