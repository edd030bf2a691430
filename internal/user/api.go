package user

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/colitas-felices/clinic/internal/shared/auth"
	"github.com/colitas-felices/clinic/internal/shared/config"
	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/events"
	"github.com/colitas-felices/clinic/internal/shared/metrics"
	"github.com/colitas-felices/clinic/internal/shared/types"
	"github.com/colitas-felices/clinic/internal/staff"
)

// Handler provides authentication and account management endpoints.
type Handler struct {
	repo      Repository
	staffRepo staff.Repository
	authCfg   config.AuthConfig
	bus       events.EventBus
}

func NewHandler(repo Repository, staffRepo staff.Repository, authCfg config.AuthConfig, bus events.EventBus) *Handler {
	return &Handler{repo: repo, staffRepo: staffRepo, authCfg: authCfg, bus: bus}
}

// AuthRoutes are mounted without the auth middleware.
func (h *Handler) AuthRoutes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", h.Login)
	return r
}

// SessionRoutes need a valid token but no particular permission.
func (h *Handler) SessionRoutes() chi.Router {
	r := chi.NewRouter()
	r.Get("/session", h.Session)
	r.Post("/password", h.ChangePassword)
	return r
}

// Routes manage accounts and need the user management permission.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequirePermissions(auth.PermGestionarUsuarios))

	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/stats", h.GetStats)

	r.Route("/{userID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/activar", h.Activate)
		r.Post("/desactivar", h.Deactivate)
		r.Post("/reset-password", h.ResetPassword)
	})

	return r
}

// --- Login ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	u, err := h.repo.FindByUsername(r.Context(), strings.TrimSpace(strings.ToLower(req.Username)))
	if err != nil || !u.CheckPassword(req.Password) {
		metrics.RecordLoginAttempt(false)
		writeError(w, errors.Unauthorized("credenciales invalidas"))
		return
	}
	if u.Status != StatusActive {
		metrics.RecordLoginAttempt(false)
		writeError(w, errors.Forbidden("el usuario se encuentra inactivo"))
		return
	}

	profileID := h.profileID(r, u)
	principal := auth.User{
		ID:          u.ID,
		Username:    u.Username,
		Role:        u.Role,
		ProfileID:   profileID,
		Permissions: auth.PermissionsFor(u.Role),
	}

	token, expiresAt, err := auth.GenerateToken(h.authCfg, principal)
	if err != nil {
		writeError(w, errors.Internal(err))
		return
	}

	metrics.RecordLoginAttempt(true)
	h.publish(r, events.NewEvent("usuario.sesion_iniciada", "user", map[string]any{
		"usuario_id": u.ID,
		"tipo":       u.Role,
	}).WithActor(u.ID, u.Role))

	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_at": expiresAt,
		"usuario":    u,
		"perfil_id":  profileID,
		"permisos":   principal.Permissions,
	})
}

// profileID resolves the role profile linked to the account. A missing
// profile does not block login, the token just carries an empty one.
func (h *Handler) profileID(r *http.Request, u *User) types.ID {
	switch u.Role {
	case auth.RoleVeterinario:
		if v, err := h.staffRepo.FindVeterinarianByUser(r.Context(), u.ID); err == nil {
			return v.ID
		}
	case auth.RoleRecepcionista:
		if rec, err := h.staffRepo.FindReceptionistByUser(r.Context(), u.ID); err == nil {
			return rec.ID
		}
	case auth.RoleAdministrador:
		if adm, err := h.staffRepo.FindAdministratorByUser(r.Context(), u.ID); err == nil {
			return adm.ID
		}
	}
	return types.ID("")
}

// --- Session ---

func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.GetUser(r.Context())
	if !ok {
		writeError(w, errors.Unauthorized("no autenticado"))
		return
	}
	u, err := h.repo.FindByID(r.Context(), principal.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"usuario":   u,
		"perfil_id": principal.ProfileID,
		"permisos":  principal.Permissions,
	})
}

type changePasswordRequest struct {
	Actual string `json:"actual"`
	Nueva  string `json:"nueva"`
}

func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.GetUser(r.Context())
	if !ok {
		writeError(w, errors.Unauthorized("no autenticado"))
		return
	}
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	u, err := h.repo.FindByID(r.Context(), principal.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !u.CheckPassword(req.Actual) {
		writeError(w, errors.Unauthorized("la contrasena actual no coincide"))
		return
	}
	if err := u.SetPassword(req.Nueva); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.UpdatePassword(r.Context(), u); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Account management ---

type createUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Tipo     string `json:"tipo"`

	Nombre          string `json:"nombre"`
	ApellidoPaterno string `json:"apellido_paterno"`
	ApellidoMaterno string `json:"apellido_materno"`
	DNI             string `json:"dni"`
	Email           string `json:"email"`
	Telefono        string `json:"telefono"`
	Genero          string `json:"genero"`
	FechaNacimiento string `json:"fecha_nacimiento"`

	CodigoCMVP     string `json:"codigo_cmvp,omitempty"`
	EspecialidadID string `json:"especialidad_id,omitempty"`
	Turno          string `json:"turno,omitempty"`
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	u, err := New(req.Username, req.Password, req.Tipo)
	if err != nil {
		writeError(w, err)
		return
	}

	birthDate, err := time.Parse("2006-01-02", req.FechaNacimiento)
	if err != nil {
		writeError(w, errors.Validation("datos de personal invalidos", map[string]string{
			"fecha_nacimiento": "formato de fecha invalido, se espera AAAA-MM-DD",
		}))
		return
	}
	person, err := staff.NewPerson(types.PersonName{
		FirstName:    req.Nombre,
		PaternalName: req.ApellidoPaterno,
		MaternalName: req.ApellidoMaterno,
	}, req.DNI, req.Email, req.Telefono, req.Genero, birthDate)
	if err != nil {
		writeError(w, err)
		return
	}

	var profileID types.ID
	switch u.Role {
	case auth.RoleVeterinario:
		shift, err := staff.ParseShift(req.Turno)
		if err != nil {
			writeError(w, err)
			return
		}
		specialtyID, err := types.ParseID(req.EspecialidadID)
		if err != nil {
			writeError(w, errors.BadRequest("identificador de especialidad invalido"))
			return
		}
		v, err := staff.NewVeterinarian(u.ID, person, req.CodigoCMVP, specialtyID, shift)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := h.repo.CreateWithVeterinarian(r.Context(), u, v); err != nil {
			writeError(w, err)
			return
		}
		profileID = v.ID

	case auth.RoleRecepcionista:
		shift, err := staff.ParseShift(req.Turno)
		if err != nil {
			writeError(w, err)
			return
		}
		rec := staff.NewReceptionist(u.ID, person, shift)
		if err := h.repo.CreateWithReceptionist(r.Context(), u, rec); err != nil {
			writeError(w, err)
			return
		}
		profileID = rec.ID

	case auth.RoleAdministrador:
		adm := staff.NewAdministrator(u.ID, person)
		if err := h.repo.CreateWithAdministrator(r.Context(), u, adm); err != nil {
			writeError(w, err)
			return
		}
		profileID = adm.ID
	}

	h.publishActed(r, events.NewEvent("usuario.creado", "user", map[string]any{
		"usuario_id": u.ID,
		"tipo":       u.Role,
	}))

	writeJSON(w, http.StatusCreated, map[string]any{
		"usuario":   u,
		"perfil_id": profileID,
	})
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := ListFilter{
		Search: r.URL.Query().Get("search"),
		Role:   r.URL.Query().Get("tipo"),
		Status: Status(r.URL.Query().Get("estado")),
	}
	filter.Limit, filter.Offset = parsePagination(r)

	users, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":  users,
		"total": total,
	})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de usuario invalido"))
		return
	}
	u, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, func(u *User) { u.Activate() })
}

func (h *Handler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.setStatus(w, r, func(u *User) { u.Deactivate() })
}

func (h *Handler) setStatus(w http.ResponseWriter, r *http.Request, apply func(*User)) {
	id, err := types.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de usuario invalido"))
		return
	}
	u, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	apply(u)
	if err := h.repo.UpdateStatus(r.Context(), u); err != nil {
		writeError(w, err)
		return
	}

	h.publishActed(r, events.NewEvent("usuario.estado_cambiado", "user", map[string]any{
		"usuario_id": u.ID,
		"estado":     u.Status,
	}))

	writeJSON(w, http.StatusOK, u)
}

type resetPasswordRequest struct {
	Nueva string `json:"nueva"`
}

// ResetPassword sets a new password without knowing the current one.
// Reserved for administrators through the permission on this router.
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	id, err := types.ParseID(chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, errors.BadRequest("identificador de usuario invalido"))
		return
	}
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("cuerpo de solicitud invalido"))
		return
	}

	u, err := h.repo.FindByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := u.SetPassword(req.Nueva); err != nil {
		writeError(w, err)
		return
	}
	if err := h.repo.UpdatePassword(r.Context(), u); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
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
