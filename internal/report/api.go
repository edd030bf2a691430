package report

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/colitas-felices/clinic/internal/shared/auth"
	"github.com/colitas-felices/clinic/internal/shared/errors"
)

type Handler struct {
	repo Repository
}

func NewHandler(repo Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) DashboardRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequirePermissions(auth.PermVerDashboard))

	r.Get("/", h.GetDashboard)

	return r
}

func (h *Handler) ReportRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequirePermissions(auth.PermVerReportes))

	r.Get("/atenciones", h.GetAttentions)
	r.Get("/servicios-top", h.GetTopServices)
	r.Get("/patologias", h.GetPathologies)
	r.Get("/ingresos", h.GetRevenue)
	r.Get("/urgencias", h.GetUrgencies)
	r.Get("/veterinarios", h.GetVeterinarianActivity)
	r.Get("/clientes", h.GetClientsSummary)

	return r
}

// AgendaRoutes exposes today's appointment schedule to any clinical role.
func (h *Handler) AgendaRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(auth.RequirePermissions(auth.PermVerDashboard))

	r.Get("/hoy", h.GetTodaySchedule)

	return r
}

func (h *Handler) GetDashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.repo.Dashboard(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) GetAttentions(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.repo.AttentionsByPeriod(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"desde": from.Format("2006-01-02"),
		"hasta": to.Format("2006-01-02"),
		"dias":  rows,
	})
}

func (h *Handler) GetTopServices(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.repo.TopServices(r.Context(), from, to, parseLimit(r, 10))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) GetPathologies(w http.ResponseWriter, r *http.Request) {
	rows, err := h.repo.FrequentPathologies(r.Context(), parseLimit(r, 10))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) GetRevenue(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, total, err := h.repo.RevenueByService(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"desde":     from.Format("2006-01-02"),
		"hasta":     to.Format("2006-01-02"),
		"total":     total,
		"servicios": rows,
	})
}

func (h *Handler) GetUrgencies(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.repo.UrgencyDistribution(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) GetVeterinarianActivity(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}
	rows, err := h.repo.VeterinarianActivity(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) GetClientsSummary(w http.ResponseWriter, r *http.Request) {
	from, to, err := parsePeriod(r)
	if err != nil {
		writeError(w, err)
		return
	}
	summary, err := h.repo.ClientsSummary(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) GetTodaySchedule(w http.ResponseWriter, r *http.Request) {
	rows, err := h.repo.TodaySchedule(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// parsePeriod reads desde/hasta query params; defaults to the last 30
// days. The upper bound is exclusive.
func parsePeriod(r *http.Request) (from, to time.Time, err error) {
	now := time.Now().UTC()
	to = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	from = to.AddDate(0, 0, -30)

	if v := r.URL.Query().Get("desde"); v != "" {
		from, err = time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, errors.BadRequest("fecha desde invalida, use el formato AAAA-MM-DD")
		}
	}
	if v := r.URL.Query().Get("hasta"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return from, to, errors.BadRequest("fecha hasta invalida, use el formato AAAA-MM-DD")
		}
		to = t.AddDate(0, 0, 1)
	}
	if !from.Before(to) {
		return from, to, errors.BadRequest("el rango de fechas es invalido")
	}
	return from, to, nil
}

func parseLimit(r *http.Request, def int) int {
	limit := def
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > 100 {
		limit = 100
	}
	return limit
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
