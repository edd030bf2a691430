package report

import (
	"context"
	"time"

	"github.com/colitas-felices/clinic/internal/shared/database"
	"github.com/colitas-felices/clinic/internal/shared/errors"
)

type PostgresRepository struct {
	db *database.DB
}

func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM clientes),
			(SELECT COUNT(*) FROM mascotas),
			(SELECT COUNT(*) FROM veterinarios WHERE disposicion = 'Libre'),
			(SELECT COUNT(*) FROM solicitudes_atencion WHERE estado = 'Pendiente'),
			(SELECT COUNT(*) FROM consultas WHERE finalizada_en IS NULL),
			(SELECT COUNT(*) FROM citas WHERE fecha = CURRENT_DATE AND estado = 'Programada'),
			(SELECT COUNT(*) FROM servicios_solicitados WHERE estado IN ('Solicitado', 'Citado', 'En proceso'))`,
	).Scan(
		&d.Clients, &d.Pets, &d.FreeVeterinarians, &d.PendingRequests,
		&d.OpenConsultations, &d.AppointmentsToday, &d.PendingOrders,
	)
	if err != nil {
		return nil, errors.Wrap(err, "loading dashboard")
	}
	return &d, nil
}

func (r *PostgresRepository) AttentionsByPeriod(ctx context.Context, from, to time.Time) ([]PeriodRow, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT date_trunc('day', fecha_hora_creacion) AS dia,
			COUNT(*),
			COUNT(*) FILTER (WHERE estado = 'Completada'),
			COUNT(*) FILTER (WHERE estado = 'Cancelada')
		FROM solicitudes_atencion
		WHERE fecha_hora_creacion >= $1 AND fecha_hora_creacion < $2
		GROUP BY dia ORDER BY dia`, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "querying attentions by period")
	}
	defer rows.Close()

	out := make([]PeriodRow, 0)
	for rows.Next() {
		var row PeriodRow
		if err := rows.Scan(&row.Date, &row.Requests, &row.Completed, &row.Cancelled); err != nil {
			return nil, errors.Wrap(err, "scanning period row")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) TopServices(ctx context.Context, from, to time.Time, limit int) ([]ServiceCount, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT s.id, s.nombre, COUNT(o.id)
		FROM servicios_solicitados o
		JOIN servicios s ON s.id = o.servicio_id
		WHERE o.fecha_creacion >= $1 AND o.fecha_creacion < $2
		GROUP BY s.id, s.nombre
		ORDER BY COUNT(o.id) DESC
		LIMIT $3`, from, to, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying top services")
	}
	defer rows.Close()

	out := make([]ServiceCount, 0)
	for rows.Next() {
		var row ServiceCount
		if err := rows.Scan(&row.ServiceID, &row.Name, &row.Count); err != nil {
			return nil, errors.Wrap(err, "scanning service count")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) FrequentPathologies(ctx context.Context, limit int) ([]PathologyCount, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT p.id, p.nombre, p.gravedad, COUNT(d.id)
		FROM diagnosticos d
		JOIN patologias p ON p.id = d.patologia_id
		GROUP BY p.id, p.nombre, p.gravedad
		ORDER BY COUNT(d.id) DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "querying frequent pathologies")
	}
	defer rows.Close()

	out := make([]PathologyCount, 0)
	for rows.Next() {
		var row PathologyCount
		if err := rows.Scan(&row.PathologyID, &row.Name, &row.Severity, &row.Count); err != nil {
			return nil, errors.Wrap(err, "scanning pathology count")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) RevenueByService(ctx context.Context, from, to time.Time) ([]RevenueRow, float64, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT s.id, s.nombre, COUNT(o.id), COUNT(o.id) * s.precio
		FROM servicios_solicitados o
		JOIN servicios s ON s.id = o.servicio_id
		WHERE o.estado = 'Completado' AND o.updated_at >= $1 AND o.updated_at < $2
		GROUP BY s.id, s.nombre, s.precio
		ORDER BY COUNT(o.id) * s.precio DESC`, from, to)
	if err != nil {
		return nil, 0, errors.Wrap(err, "querying revenue")
	}
	defer rows.Close()

	out := make([]RevenueRow, 0)
	var total float64
	for rows.Next() {
		var row RevenueRow
		if err := rows.Scan(&row.ServiceID, &row.Name, &row.Completed, &row.Revenue); err != nil {
			return nil, 0, errors.Wrap(err, "scanning revenue row")
		}
		total += row.Revenue
		out = append(out, row)
	}
	return out, total, rows.Err()
}

func (r *PostgresRepository) UrgencyDistribution(ctx context.Context, from, to time.Time) ([]UrgencyCount, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT clasificacion_urgencia, COUNT(*)
		FROM triajes
		WHERE fecha_hora >= $1 AND fecha_hora < $2
		GROUP BY clasificacion_urgencia
		ORDER BY COUNT(*) DESC`, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "querying urgency distribution")
	}
	defer rows.Close()

	out := make([]UrgencyCount, 0)
	for rows.Next() {
		var row UrgencyCount
		if err := rows.Scan(&row.Urgency, &row.Count); err != nil {
			return nil, errors.Wrap(err, "scanning urgency count")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) VeterinarianActivity(ctx context.Context, from, to time.Time) ([]VetActivity, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT v.id, v.nombre || ' ' || v.apellido_paterno, v.turno, v.disposicion,
			(SELECT COUNT(*) FROM consultas c
				WHERE c.veterinario_id = v.id AND c.fecha_hora >= $1 AND c.fecha_hora < $2),
			(SELECT COUNT(*) FROM citas ci
				WHERE ci.veterinario_id = v.id AND ci.estado = 'Atendida'
				AND ci.updated_at >= $1 AND ci.updated_at < $2)
		FROM veterinarios v
		ORDER BY v.apellido_paterno, v.nombre`, from, to)
	if err != nil {
		return nil, errors.Wrap(err, "querying veterinarian activity")
	}
	defer rows.Close()

	out := make([]VetActivity, 0)
	for rows.Next() {
		var row VetActivity
		err := rows.Scan(&row.VeterinarianID, &row.Name, &row.Shift, &row.Disposition,
			&row.Consultations, &row.Appointments)
		if err != nil {
			return nil, errors.Wrap(err, "scanning veterinarian activity")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) ClientsSummary(ctx context.Context, from, to time.Time) (*ClientsSummary, error) {
	var s ClientsSummary
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM clientes),
			(SELECT COUNT(*) FROM clientes WHERE created_at >= $1 AND created_at < $2),
			(SELECT COUNT(DISTINCT cliente_id) FROM clientes_mascotas)`, from, to,
	).Scan(&s.Total, &s.NewInPeriod, &s.WithPets)
	if err != nil {
		return nil, errors.Wrap(err, "loading clients summary")
	}
	return &s, nil
}

func (r *PostgresRepository) TodaySchedule(ctx context.Context) ([]ScheduleRow, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT ci.id, to_char(ci.hora, 'HH24:MI'), ci.estado, v.id,
			v.nombre || ' ' || v.apellido_paterno, s.nombre, m.nombre, ci.requiere_ayuno
		FROM citas ci
		JOIN veterinarios v ON v.id = ci.veterinario_id
		JOIN servicios_solicitados o ON o.id = ci.servicio_solicitado_id
		JOIN servicios s ON s.id = o.servicio_id
		JOIN consultas c ON c.id = o.consulta_id
		JOIN triajes t ON t.id = c.triaje_id
		JOIN solicitudes_atencion sa ON sa.id = t.solicitud_id
		JOIN mascotas m ON m.id = sa.mascota_id
		WHERE ci.fecha = CURRENT_DATE
		ORDER BY v.apellido_paterno, v.nombre, ci.hora`)
	if err != nil {
		return nil, errors.Wrap(err, "querying today's schedule")
	}
	defer rows.Close()

	out := make([]ScheduleRow, 0)
	for rows.Next() {
		var row ScheduleRow
		err := rows.Scan(&row.AppointmentID, &row.Time, &row.Status, &row.VeterinarianID,
			&row.Veterinarian, &row.Service, &row.Pet, &row.RequiresFast)
		if err != nil {
			return nil, errors.Wrap(err, "scanning schedule row")
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
