package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_http_requests_total",
		Help: "Total HTTP requests by method, path and status.",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clinic_http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	attentionRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_attention_requests_total",
		Help: "Attention requests by resulting state.",
	}, []string{"estado"})

	triagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_triages_total",
		Help: "Recorded triages by urgency classification.",
	}, []string{"urgencia"})

	consultationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_consultations_total",
		Help: "Consultations by lifecycle event.",
	}, []string{"evento"})

	appointmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_appointments_total",
		Help: "Appointments by resulting state.",
	}, []string{"estado"})

	loginAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clinic_login_attempts_total",
		Help: "Login attempts by outcome.",
	}, []string{"resultado"})
)

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latencies for every route.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		path := normalizePath(r.URL.Path)
		httpRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(rw.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// normalizePath collapses path segments that look like identifiers so
// metric cardinality stays bounded.
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		if len(s) >= 16 || isNumeric(s) {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func RecordAttentionRequest(estado string) {
	attentionRequestsTotal.WithLabelValues(estado).Inc()
}

func RecordTriage(urgencia string) {
	triagesTotal.WithLabelValues(urgencia).Inc()
}

func RecordConsultation(evento string) {
	consultationsTotal.WithLabelValues(evento).Inc()
}

func RecordAppointment(estado string) {
	appointmentsTotal.WithLabelValues(estado).Inc()
}

func RecordLoginAttempt(success bool) {
	resultado := "fallido"
	if success {
		resultado = "exitoso"
	}
	loginAttemptsTotal.WithLabelValues(resultado).Inc()
}
