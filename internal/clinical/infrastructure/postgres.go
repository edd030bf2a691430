package infrastructure

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/colitas-felices/clinic/internal/clinical/domain"
	"github.com/colitas-felices/clinic/internal/shared/database"
	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

// PostgresRepository implements domain.Repository on PostgreSQL.
type PostgresRepository struct {
	db *database.DB
}

func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// --- Attention requests ---

const requestColumns = `id, mascota_id, recepcionista_id, tipo_solicitud, estado, motivo, fecha_hora_creacion, updated_at`

func (r *PostgresRepository) CreateRequest(ctx context.Context, req *domain.AttentionRequest) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO solicitudes_atencion (id, mascota_id, recepcionista_id, tipo_solicitud, estado, motivo, fecha_hora_creacion, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		req.ID, req.PetID, req.ReceptionistID, req.Type, req.Status, req.Reason, req.CreatedAt, req.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.BadRequest("mascota o recepcionista inexistente")
		}
		return errors.Wrap(err, "creating attention request")
	}
	return nil
}

func (r *PostgresRepository) FindRequest(ctx context.Context, id types.ID) (*domain.AttentionRequest, error) {
	var req domain.AttentionRequest
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM solicitudes_atencion WHERE id = $1`, id,
	).Scan(&req.ID, &req.PetID, &req.ReceptionistID, &req.Type, &req.Status, &req.Reason, &req.CreatedAt, &req.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("solicitud de atencion", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding attention request")
	}
	return &req, nil
}

func (r *PostgresRepository) ListRequests(ctx context.Context, filter domain.RequestFilter) ([]domain.AttentionRequest, int, error) {
	where := []string{}
	args := []any{}
	argNum := 1

	if filter.Status != "" {
		where = append(where, fmt.Sprintf("estado = $%d", argNum))
		args = append(args, filter.Status)
		argNum++
	}
	if !filter.PetID.IsZero() {
		where = append(where, fmt.Sprintf("mascota_id = $%d", argNum))
		args = append(args, filter.PetID)
		argNum++
	}

	whereClause := ""
	for i, w := range where {
		if i == 0 {
			whereClause = " WHERE " + w
		} else {
			whereClause += " AND " + w
		}
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM solicitudes_atencion`+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting attention requests")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM solicitudes_atencion%s ORDER BY fecha_hora_creacion DESC LIMIT $%d OFFSET $%d`,
		requestColumns, whereClause, argNum, argNum+1,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing attention requests")
	}
	defer rows.Close()

	requests := make([]domain.AttentionRequest, 0)
	for rows.Next() {
		var req domain.AttentionRequest
		if err := rows.Scan(&req.ID, &req.PetID, &req.ReceptionistID, &req.Type, &req.Status, &req.Reason, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, 0, errors.Wrap(err, "scanning attention request")
		}
		requests = append(requests, req)
	}
	return requests, total, rows.Err()
}

func (r *PostgresRepository) UpdateRequestStatus(ctx context.Context, req *domain.AttentionRequest) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE solicitudes_atencion SET estado = $2, updated_at = $3 WHERE id = $1`,
		req.ID, req.Status, req.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "updating request status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("solicitud de atencion", req.ID.String())
	}
	return nil
}

// --- Triage ---

const triageColumns = `id, solicitud_id, veterinario_id, peso_mascota, latido_por_minuto, frecuencia_respiratoria,
	temperatura, frecuencia_pulso, porcentaje_deshidratacion, talla, tiempo_capilar, color_mucosas,
	condicion_corporal, clasificacion_urgencia, fecha_hora`

func (r *PostgresRepository) CreateTriage(ctx context.Context, t *domain.Triage, req *domain.AttentionRequest) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO triajes (id, solicitud_id, veterinario_id, peso_mascota, latido_por_minuto, frecuencia_respiratoria,
			temperatura, frecuencia_pulso, porcentaje_deshidratacion, talla, tiempo_capilar, color_mucosas,
			condicion_corporal, clasificacion_urgencia, fecha_hora)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		t.ID, t.RequestID, t.VeterinarianID, t.WeightKg, t.HeartRate, t.RespiratoryRate,
		t.Temperature, t.PulseRate, t.DehydrationPct, t.HeightCm, t.CapillaryTime, t.MucosaColor,
		t.BodyCondition, t.Urgency, t.RecordedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("la solicitud ya tiene un triaje registrado")
		}
		if isForeignKeyViolation(err) {
			return errors.BadRequest("solicitud o veterinario inexistente")
		}
		return errors.Wrap(err, "creating triage")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE solicitudes_atencion SET estado = $2, updated_at = $3 WHERE id = $1`,
		req.ID, req.Status, req.UpdatedAt,
	); err != nil {
		return errors.Wrap(err, "updating request status")
	}

	historyID, err := ensureHistory(ctx, tx, req.PetID)
	if err != nil {
		return err
	}
	age, err := petAgeMonths(ctx, tx, req.PetID)
	if err != nil {
		return err
	}
	event := domain.NewClinicalEvent(historyID, domain.EventTriage,
		"Triaje registrado con urgencia "+string(t.Urgency), &t.ID).
		WithVeterinarian(t.VeterinarianID).WithAge(age).WithWeight(t.WeightKg)
	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) FindTriage(ctx context.Context, id types.ID) (*domain.Triage, error) {
	return r.triageBy(ctx, "id = $1", id)
}

func (r *PostgresRepository) FindTriageByRequest(ctx context.Context, requestID types.ID) (*domain.Triage, error) {
	return r.triageBy(ctx, "solicitud_id = $1", requestID)
}

func (r *PostgresRepository) triageBy(ctx context.Context, cond string, arg any) (*domain.Triage, error) {
	var t domain.Triage
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+triageColumns+` FROM triajes WHERE `+cond, arg,
	).Scan(
		&t.ID, &t.RequestID, &t.VeterinarianID, &t.WeightKg, &t.HeartRate, &t.RespiratoryRate,
		&t.Temperature, &t.PulseRate, &t.DehydrationPct, &t.HeightCm, &t.CapillaryTime, &t.MucosaColor,
		&t.BodyCondition, &t.Urgency, &t.RecordedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("triaje", fmt.Sprint(arg))
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding triage")
	}
	return &t, nil
}

func (r *PostgresRepository) ListTriages(ctx context.Context, urgency domain.Urgency, limit, offset int) ([]domain.Triage, int, error) {
	where := ""
	args := []any{}
	if urgency != "" {
		where = ` WHERE clasificacion_urgencia = $1`
		args = append(args, urgency)
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM triajes`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting triages")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM triajes%s ORDER BY fecha_hora DESC LIMIT $%d OFFSET $%d`,
		triageColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing triages")
	}
	defer rows.Close()

	triages := make([]domain.Triage, 0)
	for rows.Next() {
		var t domain.Triage
		if err := rows.Scan(
			&t.ID, &t.RequestID, &t.VeterinarianID, &t.WeightKg, &t.HeartRate, &t.RespiratoryRate,
			&t.Temperature, &t.PulseRate, &t.DehydrationPct, &t.HeightCm, &t.CapillaryTime, &t.MucosaColor,
			&t.BodyCondition, &t.Urgency, &t.RecordedAt,
		); err != nil {
			return nil, 0, errors.Wrap(err, "scanning triage")
		}
		triages = append(triages, t)
	}
	return triages, total, rows.Err()
}

// --- Consultations ---

const consultationColumns = `id, triaje_id, veterinario_id, motivo, tipo_consulta, observaciones, fecha_hora, finalizada_en`

func (r *PostgresRepository) CreateConsultation(ctx context.Context, c *domain.Consultation, req *domain.AttentionRequest) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	// The vet must be free; lock the row so two consultations cannot
	// claim the same vet at once.
	var availability string
	err = tx.QueryRow(ctx,
		`SELECT disposicion FROM veterinarios WHERE id = $1 FOR UPDATE`, c.VeterinarianID,
	).Scan(&availability)
	if err == pgx.ErrNoRows {
		return errors.NotFound("veterinario", c.VeterinarianID.String())
	}
	if err != nil {
		return errors.Wrap(err, "locking veterinarian")
	}
	if availability != "Libre" {
		return errors.Conflict("el veterinario no esta libre")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO consultas (id, triaje_id, veterinario_id, motivo, tipo_consulta, observaciones, fecha_hora)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.TriageID, c.VeterinarianID, c.Reason, c.Type, c.Observations, c.StartedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("el triaje ya tiene una consulta registrada")
		}
		if isForeignKeyViolation(err) {
			return errors.BadRequest("triaje o veterinario inexistente")
		}
		return errors.Wrap(err, "creating consultation")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE veterinarios SET disposicion = 'Ocupado', updated_at = now() WHERE id = $1`,
		c.VeterinarianID,
	); err != nil {
		return errors.Wrap(err, "marking veterinarian busy")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE solicitudes_atencion SET estado = $2, updated_at = $3 WHERE id = $1`,
		req.ID, req.Status, req.UpdatedAt,
	); err != nil {
		return errors.Wrap(err, "updating request status")
	}

	historyID, err := ensureHistory(ctx, tx, req.PetID)
	if err != nil {
		return err
	}
	age, err := petAgeMonths(ctx, tx, req.PetID)
	if err != nil {
		return err
	}
	event := domain.NewClinicalEvent(historyID, domain.EventConsultation,
		"Consulta iniciada: "+c.Reason, &c.ID).
		WithConsultation(c.ID).WithVeterinarian(c.VeterinarianID).WithAge(age)
	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) FindConsultation(ctx context.Context, id types.ID) (*domain.Consultation, error) {
	return r.consultationBy(ctx, "id = $1", id)
}

func (r *PostgresRepository) FindConsultationByTriage(ctx context.Context, triageID types.ID) (*domain.Consultation, error) {
	return r.consultationBy(ctx, "triaje_id = $1", triageID)
}

func (r *PostgresRepository) consultationBy(ctx context.Context, cond string, arg any) (*domain.Consultation, error) {
	var c domain.Consultation
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+consultationColumns+` FROM consultas WHERE `+cond, arg,
	).Scan(&c.ID, &c.TriageID, &c.VeterinarianID, &c.Reason, &c.Type, &c.Observations, &c.StartedAt, &c.FinishedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("consulta", fmt.Sprint(arg))
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding consultation")
	}
	return &c, nil
}

func (r *PostgresRepository) ListConsultationsByVet(ctx context.Context, vetID types.ID, since time.Time, limit, offset int) ([]domain.Consultation, int, error) {
	where := []string{}
	args := []any{}
	argNum := 1

	if !vetID.IsZero() {
		where = append(where, fmt.Sprintf("veterinario_id = $%d", argNum))
		args = append(args, vetID)
		argNum++
	}
	if !since.IsZero() {
		where = append(where, fmt.Sprintf("fecha_hora >= $%d", argNum))
		args = append(args, since)
		argNum++
	}

	whereClause := ""
	for i, w := range where {
		if i == 0 {
			whereClause = " WHERE " + w
		} else {
			whereClause += " AND " + w
		}
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM consultas`+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting consultations")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM consultas%s ORDER BY fecha_hora DESC LIMIT $%d OFFSET $%d`,
		consultationColumns, whereClause, argNum, argNum+1,
	)
	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing consultations")
	}
	defer rows.Close()

	consultations := make([]domain.Consultation, 0)
	for rows.Next() {
		var c domain.Consultation
		if err := rows.Scan(&c.ID, &c.TriageID, &c.VeterinarianID, &c.Reason, &c.Type, &c.Observations, &c.StartedAt, &c.FinishedAt); err != nil {
			return nil, 0, errors.Wrap(err, "scanning consultation")
		}
		consultations = append(consultations, c)
	}
	return consultations, total, rows.Err()
}

func (r *PostgresRepository) FinalizeConsultation(ctx context.Context, c *domain.Consultation, req *domain.AttentionRequest) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE consultas SET observaciones = $2, finalizada_en = $3 WHERE id = $1 AND finalizada_en IS NULL`,
		c.ID, c.Observations, c.FinishedAt,
	)
	if err != nil {
		return errors.Wrap(err, "finalizing consultation")
	}
	if tag.RowsAffected() == 0 {
		return errors.Conflict("la consulta ya fue finalizada")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE veterinarios SET disposicion = 'Libre', updated_at = now() WHERE id = $1`,
		c.VeterinarianID,
	); err != nil {
		return errors.Wrap(err, "freeing veterinarian")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE solicitudes_atencion SET estado = $2, updated_at = $3 WHERE id = $1`,
		req.ID, req.Status, req.UpdatedAt,
	); err != nil {
		return errors.Wrap(err, "updating request status")
	}

	historyID, err := ensureHistory(ctx, tx, req.PetID)
	if err != nil {
		return err
	}
	event := domain.NewClinicalEvent(historyID, domain.EventDischarge,
		"Consulta finalizada", &c.ID).
		WithConsultation(c.ID).WithVeterinarian(c.VeterinarianID)
	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// --- Diagnoses and treatments ---

func (r *PostgresRepository) AddDiagnosis(ctx context.Context, d *domain.Diagnosis, petID types.ID) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO diagnosticos (id, consulta_id, patologia_id, tipo_diagnostico, estado_patologia, detalle, fecha_hora)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.ConsultationID, d.PathologyID, d.Type, d.PathologyState, d.Detail, d.RecordedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.BadRequest("consulta o patologia inexistente")
		}
		return errors.Wrap(err, "creating diagnosis")
	}

	historyID, err := ensureHistory(ctx, tx, petID)
	if err != nil {
		return err
	}
	vetID, err := consultationVet(ctx, tx, d.ConsultationID)
	if err != nil {
		return err
	}
	age, err := petAgeMonths(ctx, tx, petID)
	if err != nil {
		return err
	}
	event := domain.NewClinicalEvent(historyID, domain.EventDiagnosis,
		"Diagnostico "+string(d.Type)+" registrado", &d.ID).
		WithConsultation(d.ConsultationID).WithVeterinarian(vetID).WithAge(age)
	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) ListDiagnoses(ctx context.Context, consultationID types.ID) ([]domain.Diagnosis, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, consulta_id, patologia_id, tipo_diagnostico, estado_patologia, detalle, fecha_hora
		FROM diagnosticos WHERE consulta_id = $1 ORDER BY fecha_hora`, consultationID)
	if err != nil {
		return nil, errors.Wrap(err, "listing diagnoses")
	}
	defer rows.Close()

	diagnoses := make([]domain.Diagnosis, 0)
	for rows.Next() {
		var d domain.Diagnosis
		if err := rows.Scan(&d.ID, &d.ConsultationID, &d.PathologyID, &d.Type, &d.PathologyState, &d.Detail, &d.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "scanning diagnosis")
		}
		diagnoses = append(diagnoses, d)
	}
	return diagnoses, rows.Err()
}

func (r *PostgresRepository) AddTreatment(ctx context.Context, t *domain.Treatment, petID types.ID) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO tratamientos (id, consulta_id, patologia_id, tipo_tratamiento, eficacia_tratamiento, descripcion, duracion_dias, fecha_inicio, observaciones, fecha_hora)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		t.ID, t.ConsultationID, t.PathologyID, t.Type, nullIfEmpty(string(t.Efficacy)), t.Description, t.DurationDays, t.StartDate, t.Observations, t.RecordedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.BadRequest("consulta o patologia inexistente")
		}
		return errors.Wrap(err, "creating treatment")
	}

	historyID, err := ensureHistory(ctx, tx, petID)
	if err != nil {
		return err
	}
	vetID, err := consultationVet(ctx, tx, t.ConsultationID)
	if err != nil {
		return err
	}
	age, err := petAgeMonths(ctx, tx, petID)
	if err != nil {
		return err
	}
	event := domain.NewClinicalEvent(historyID, domain.EventTreatment,
		"Tratamiento indicado: "+t.Description, &t.ID).
		WithConsultation(t.ConsultationID).WithVeterinarian(vetID).WithAge(age)
	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) ListTreatments(ctx context.Context, consultationID types.ID) ([]domain.Treatment, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, consulta_id, patologia_id, tipo_tratamiento, eficacia_tratamiento, descripcion, duracion_dias, fecha_inicio, observaciones, fecha_hora
		FROM tratamientos WHERE consulta_id = $1 ORDER BY fecha_hora`, consultationID)
	if err != nil {
		return nil, errors.Wrap(err, "listing treatments")
	}
	defer rows.Close()

	treatments := make([]domain.Treatment, 0)
	for rows.Next() {
		var t domain.Treatment
		var efficacy *string
		if err := rows.Scan(&t.ID, &t.ConsultationID, &t.PathologyID, &t.Type, &efficacy, &t.Description, &t.DurationDays, &t.StartDate, &t.Observations, &t.RecordedAt); err != nil {
			return nil, errors.Wrap(err, "scanning treatment")
		}
		if efficacy != nil {
			t.Efficacy = domain.TreatmentEfficacy(*efficacy)
		}
		treatments = append(treatments, t)
	}
	return treatments, rows.Err()
}

// --- Service orders ---

const orderColumns = `id, consulta_id, servicio_id, estado, prioridad, comentario, fecha_creacion, updated_at`

func (r *PostgresRepository) CreateOrder(ctx context.Context, o *domain.ServiceOrder) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO servicios_solicitados (id, consulta_id, servicio_id, estado, prioridad, comentario, fecha_creacion, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		o.ID, o.ConsultationID, o.ServiceID, o.Status, o.Priority, o.Comment, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.BadRequest("consulta o servicio inexistente")
		}
		return errors.Wrap(err, "creating service order")
	}
	return nil
}

func (r *PostgresRepository) FindOrder(ctx context.Context, id types.ID) (*domain.ServiceOrder, error) {
	var o domain.ServiceOrder
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM servicios_solicitados WHERE id = $1`, id,
	).Scan(&o.ID, &o.ConsultationID, &o.ServiceID, &o.Status, &o.Priority, &o.Comment, &o.CreatedAt, &o.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("servicio solicitado", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding service order")
	}
	return &o, nil
}

func (r *PostgresRepository) ListOrders(ctx context.Context, consultationID types.ID) ([]domain.ServiceOrder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+orderColumns+` FROM servicios_solicitados WHERE consulta_id = $1 ORDER BY fecha_creacion`, consultationID)
	if err != nil {
		return nil, errors.Wrap(err, "listing service orders")
	}
	defer rows.Close()
	return scanOrders(rows)
}

func (r *PostgresRepository) ListOpenOrders(ctx context.Context, limit, offset int) ([]domain.ServiceOrder, int, error) {
	var total int
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM servicios_solicitados WHERE estado IN ('Solicitado', 'Citado', 'En proceso')`,
	).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting open orders")
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+orderColumns+` FROM servicios_solicitados
		WHERE estado IN ('Solicitado', 'Citado', 'En proceso')
		ORDER BY prioridad = 'Urgente' DESC, fecha_creacion
		LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing open orders")
	}
	defer rows.Close()

	orders, err := scanOrders(rows)
	return orders, total, err
}

func scanOrders(rows pgx.Rows) ([]domain.ServiceOrder, error) {
	orders := make([]domain.ServiceOrder, 0)
	for rows.Next() {
		var o domain.ServiceOrder
		if err := rows.Scan(&o.ID, &o.ConsultationID, &o.ServiceID, &o.Status, &o.Priority, &o.Comment, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning service order")
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, o *domain.ServiceOrder) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE servicios_solicitados SET estado = $2, updated_at = $3 WHERE id = $1`,
		o.ID, o.Status, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "updating order status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("servicio solicitado", o.ID.String())
	}
	return nil
}

// --- Appointments ---

const appointmentColumns = `id, servicio_solicitado_id, veterinario_id, fecha, to_char(hora, 'HH24:MI'), estado, requiere_ayuno, observaciones, created_at, updated_at`

func (r *PostgresRepository) CreateAppointment(ctx context.Context, a *domain.Appointment, o *domain.ServiceOrder) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO citas (id, servicio_solicitado_id, veterinario_id, fecha, hora, estado, requiere_ayuno, observaciones, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.ServiceOrderID, a.VeterinarianID, a.Date, a.Time, a.Status, a.RequiresFast, a.Observations, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("el servicio solicitado ya tiene una cita")
		}
		if isForeignKeyViolation(err) {
			return errors.BadRequest("servicio solicitado o veterinario inexistente")
		}
		return errors.Wrap(err, "creating appointment")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE servicios_solicitados SET estado = $2, updated_at = $3 WHERE id = $1`,
		o.ID, o.Status, o.UpdatedAt,
	); err != nil {
		return errors.Wrap(err, "updating order status")
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) FindAppointment(ctx context.Context, id types.ID) (*domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+appointmentColumns+` FROM citas WHERE id = $1`, id,
	).Scan(&a.ID, &a.ServiceOrderID, &a.VeterinarianID, &a.Date, &a.Time, &a.Status, &a.RequiresFast, &a.Observations, &a.CreatedAt, &a.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("cita", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding appointment")
	}
	return &a, nil
}

func (r *PostgresRepository) ListAppointments(ctx context.Context, filter domain.AppointmentFilter) ([]domain.Appointment, int, error) {
	where := []string{}
	args := []any{}
	argNum := 1

	if !filter.Date.IsZero() {
		where = append(where, fmt.Sprintf("fecha = $%d", argNum))
		args = append(args, filter.Date)
		argNum++
	}
	if !filter.VeterinarianID.IsZero() {
		where = append(where, fmt.Sprintf("veterinario_id = $%d", argNum))
		args = append(args, filter.VeterinarianID)
		argNum++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("estado = $%d", argNum))
		args = append(args, filter.Status)
		argNum++
	}

	whereClause := ""
	for i, w := range where {
		if i == 0 {
			whereClause = " WHERE " + w
		} else {
			whereClause += " AND " + w
		}
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM citas`+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting appointments")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM citas%s ORDER BY fecha, hora LIMIT $%d OFFSET $%d`,
		appointmentColumns, whereClause, argNum, argNum+1,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing appointments")
	}
	defer rows.Close()

	appointments := make([]domain.Appointment, 0)
	for rows.Next() {
		var a domain.Appointment
		if err := rows.Scan(&a.ID, &a.ServiceOrderID, &a.VeterinarianID, &a.Date, &a.Time, &a.Status, &a.RequiresFast, &a.Observations, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, 0, errors.Wrap(err, "scanning appointment")
		}
		appointments = append(appointments, a)
	}
	return appointments, total, rows.Err()
}

func (r *PostgresRepository) UpdateAppointmentStatus(ctx context.Context, a *domain.Appointment) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE citas SET estado = $2, updated_at = $3 WHERE id = $1`,
		a.ID, a.Status, a.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "updating appointment status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("cita", a.ID.String())
	}
	return nil
}

// --- Results ---

func (r *PostgresRepository) CreateResult(ctx context.Context, res *domain.ServiceResult, o *domain.ServiceOrder, petID types.ID) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO resultados_servicio (id, servicio_solicitado_id, veterinario_id, descripcion, archivo, origen, referencia_externa, fecha_realizacion)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		res.ID, res.ServiceOrderID, res.VeterinarianID, res.Description, res.FileURL, res.Origin, res.ExternalRef, res.PerformedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.BadRequest("servicio solicitado o veterinario inexistente")
		}
		return errors.Wrap(err, "creating service result")
	}

	if _, err := tx.Exec(ctx,
		`UPDATE servicios_solicitados SET estado = $2, updated_at = $3 WHERE id = $1`,
		o.ID, o.Status, o.UpdatedAt,
	); err != nil {
		return errors.Wrap(err, "completing order")
	}

	// The appointment, if one exists and is still open, is fulfilled by
	// the result.
	if _, err := tx.Exec(ctx, `
		UPDATE citas SET estado = 'Atendida', updated_at = now()
		WHERE servicio_solicitado_id = $1 AND estado = 'Programada'`,
		o.ID,
	); err != nil {
		return errors.Wrap(err, "attending appointment")
	}

	historyID, err := ensureHistory(ctx, tx, petID)
	if err != nil {
		return err
	}
	age, err := petAgeMonths(ctx, tx, petID)
	if err != nil {
		return err
	}
	event := domain.NewClinicalEvent(historyID, domain.EventResult,
		"Resultado registrado ("+res.Origin+")", &res.ID).
		WithConsultation(o.ConsultationID).WithAge(age)
	if res.VeterinarianID != nil {
		event = event.WithVeterinarian(*res.VeterinarianID)
	}
	if err := insertEvent(ctx, tx, event); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) ListResults(ctx context.Context, orderID types.ID) ([]domain.ServiceResult, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, servicio_solicitado_id, veterinario_id, descripcion, archivo, origen, referencia_externa, fecha_realizacion
		FROM resultados_servicio WHERE servicio_solicitado_id = $1 ORDER BY fecha_realizacion`, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "listing results")
	}
	defer rows.Close()

	results := make([]domain.ServiceResult, 0)
	for rows.Next() {
		var res domain.ServiceResult
		if err := rows.Scan(&res.ID, &res.ServiceOrderID, &res.VeterinarianID, &res.Description, &res.FileURL, &res.Origin, &res.ExternalRef, &res.PerformedAt); err != nil {
			return nil, errors.Wrap(err, "scanning result")
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

func (r *PostgresRepository) HasResultWithExternalRef(ctx context.Context, ref string) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM resultados_servicio WHERE referencia_externa = $1)`, ref,
	).Scan(&exists)
	if err != nil {
		return false, errors.Wrap(err, "checking external reference")
	}
	return exists, nil
}

// --- Medical history ---

const eventColumns = `id, historial_id, tipo_evento, descripcion, referencia, consulta_id, veterinario_id, edad_meses, peso_momento, fecha_hora`

func (r *PostgresRepository) HistoryForPet(ctx context.Context, petID types.ID, limit, offset int) (*domain.MedicalHistory, []domain.ClinicalEvent, int, error) {
	var h domain.MedicalHistory
	err := r.db.Pool.QueryRow(ctx,
		`SELECT id, mascota_id, fecha_creacion FROM historiales_clinicos WHERE mascota_id = $1`, petID,
	).Scan(&h.ID, &h.PetID, &h.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil, 0, errors.NotFound("historial clinico", petID.String())
	}
	if err != nil {
		return nil, nil, 0, errors.Wrap(err, "finding medical history")
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM eventos_clinicos WHERE historial_id = $1`, h.ID,
	).Scan(&total); err != nil {
		return nil, nil, 0, errors.Wrap(err, "counting clinical events")
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM eventos_clinicos WHERE historial_id = $1
		ORDER BY fecha_hora DESC LIMIT $2 OFFSET $3`, h.ID, limit, offset)
	if err != nil {
		return nil, nil, 0, errors.Wrap(err, "listing clinical events")
	}
	defer rows.Close()

	events, err := scanEvents(rows)
	return &h, events, total, err
}

func (r *PostgresRepository) EventsForConsultation(ctx context.Context, consultationID types.ID) ([]domain.ClinicalEvent, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+eventColumns+`
		FROM eventos_clinicos WHERE consulta_id = $1
		ORDER BY fecha_hora`, consultationID)
	if err != nil {
		return nil, errors.Wrap(err, "listing consultation events")
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows pgx.Rows) ([]domain.ClinicalEvent, error) {
	events := make([]domain.ClinicalEvent, 0)
	for rows.Next() {
		var e domain.ClinicalEvent
		if err := rows.Scan(&e.ID, &e.HistoryID, &e.EventType, &e.Description, &e.Reference,
			&e.ConsultationID, &e.VeterinarianID, &e.AgeMonths, &e.WeightKg, &e.OccurredAt); err != nil {
			return nil, errors.Wrap(err, "scanning clinical event")
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Lookups across the workflow chain ---

func (r *PostgresRepository) PetForTriage(ctx context.Context, triageID types.ID) (types.ID, error) {
	var petID types.ID
	err := r.db.Pool.QueryRow(ctx, `
		SELECT s.mascota_id
		FROM triajes t JOIN solicitudes_atencion s ON s.id = t.solicitud_id
		WHERE t.id = $1`, triageID,
	).Scan(&petID)
	if err == pgx.ErrNoRows {
		return types.ID(""), errors.NotFound("triaje", triageID.String())
	}
	if err != nil {
		return types.ID(""), errors.Wrap(err, "resolving pet for triage")
	}
	return petID, nil
}

func (r *PostgresRepository) PetForOrder(ctx context.Context, orderID types.ID) (types.ID, error) {
	var petID types.ID
	err := r.db.Pool.QueryRow(ctx, `
		SELECT s.mascota_id
		FROM servicios_solicitados o
		JOIN consultas c ON c.id = o.consulta_id
		JOIN triajes t ON t.id = c.triaje_id
		JOIN solicitudes_atencion s ON s.id = t.solicitud_id
		WHERE o.id = $1`, orderID,
	).Scan(&petID)
	if err == pgx.ErrNoRows {
		return types.ID(""), errors.NotFound("servicio solicitado", orderID.String())
	}
	if err != nil {
		return types.ID(""), errors.Wrap(err, "resolving pet for order")
	}
	return petID, nil
}

// --- Stats ---

func (r *PostgresRepository) Stats(ctx context.Context) (*domain.WorkflowStats, error) {
	stats := &domain.WorkflowStats{
		RequestsByStatus: map[string]int{},
		TriagesByUrgency: map[string]int{},
	}

	rows, err := r.db.Pool.Query(ctx, `SELECT estado, COUNT(*) FROM solicitudes_atencion GROUP BY estado`)
	if err != nil {
		return nil, errors.Wrap(err, "querying request stats")
	}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scanning request stats")
		}
		stats.RequestsByStatus[status] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "reading request stats")
	}

	rows, err = r.db.Pool.Query(ctx, `SELECT clasificacion_urgencia, COUNT(*) FROM triajes GROUP BY clasificacion_urgencia`)
	if err != nil {
		return nil, errors.Wrap(err, "querying triage stats")
	}
	for rows.Next() {
		var urgency string
		var count int
		if err := rows.Scan(&urgency, &count); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scanning triage stats")
		}
		stats.TriagesByUrgency[urgency] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "reading triage stats")
	}

	err = r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM consultas WHERE finalizada_en IS NULL),
			(SELECT COUNT(*) FROM consultas WHERE fecha_hora >= date_trunc('day', now())),
			(SELECT COUNT(*) FROM servicios_solicitados WHERE estado IN ('Solicitado', 'Citado', 'En proceso')),
			(SELECT COUNT(*) FROM citas WHERE fecha = CURRENT_DATE AND estado = 'Programada')`,
	).Scan(&stats.OpenConsultations, &stats.ConsultationsToday, &stats.PendingOrders, &stats.AppointmentsToday)
	if err != nil {
		return nil, errors.Wrap(err, "querying workflow counters")
	}

	return stats, nil
}

// --- Helpers ---

// ensureHistory returns the history for a pet, creating it on first
// use.
func ensureHistory(ctx context.Context, tx pgx.Tx, petID types.ID) (types.ID, error) {
	var id types.ID
	err := tx.QueryRow(ctx,
		`SELECT id FROM historiales_clinicos WHERE mascota_id = $1`, petID,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != pgx.ErrNoRows {
		return types.ID(""), errors.Wrap(err, "finding medical history")
	}

	id = types.NewID()
	if _, err := tx.Exec(ctx,
		`INSERT INTO historiales_clinicos (id, mascota_id, fecha_creacion) VALUES ($1, $2, now())`,
		id, petID,
	); err != nil {
		return types.ID(""), errors.Wrap(err, "creating medical history")
	}
	return id, nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, e domain.ClinicalEvent) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO eventos_clinicos (id, historial_id, tipo_evento, descripcion, referencia, consulta_id, veterinario_id, edad_meses, peso_momento, fecha_hora)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.HistoryID, e.EventType, e.Description, e.Reference,
		e.ConsultationID, e.VeterinarianID, e.AgeMonths, e.WeightKg, e.OccurredAt,
	)
	if err != nil {
		return errors.Wrap(err, "appending clinical event")
	}
	return nil
}

// petAgeMonths reads the pet's registered age at the time of the event.
func petAgeMonths(ctx context.Context, tx pgx.Tx, petID types.ID) (int, error) {
	var years, months int
	err := tx.QueryRow(ctx,
		`SELECT edad_anios, edad_meses FROM mascotas WHERE id = $1`, petID,
	).Scan(&years, &months)
	if err != nil {
		return 0, errors.Wrap(err, "reading pet age")
	}
	return years*12 + months, nil
}

func consultationVet(ctx context.Context, tx pgx.Tx, consultationID types.ID) (types.ID, error) {
	var vetID types.ID
	err := tx.QueryRow(ctx,
		`SELECT veterinario_id FROM consultas WHERE id = $1`, consultationID,
	).Scan(&vetID)
	if err != nil {
		return types.ID(""), errors.Wrap(err, "resolving consultation veterinarian")
	}
	return vetID, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}
