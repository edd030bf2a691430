package catalog

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/colitas-felices/clinic/internal/shared/database"
	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
)

type PostgresRepository struct {
	db *database.DB
}

func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var allowedTables = map[string]bool{
	TableAnimalTypes:  true,
	TableSpecialties:  true,
	TableServiceTypes: true,
}

func checkTable(table string) error {
	if !allowedTables[table] {
		return errors.Internal(fmt.Errorf("unknown catalog table %q", table))
	}
	return nil
}

// --- Simple catalogs ---

func (r *PostgresRepository) CreateEntry(ctx context.Context, table string, e *Entry) error {
	if err := checkTable(table); err != nil {
		return err
	}
	_, err := r.db.Pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, descripcion, created_at) VALUES ($1, $2, $3)`, table),
		e.ID, e.Description, e.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("la descripcion ya existe en el catalogo")
		}
		return errors.Wrap(err, "creating catalog entry")
	}
	return nil
}

func (r *PostgresRepository) ListEntries(ctx context.Context, table string) ([]Entry, error) {
	if err := checkTable(table); err != nil {
		return nil, err
	}
	rows, err := r.db.Pool.Query(ctx,
		fmt.Sprintf(`SELECT id, descripcion, created_at FROM %s ORDER BY descripcion`, table))
	if err != nil {
		return nil, errors.Wrap(err, "listing catalog entries")
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Description, &e.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning catalog entry")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *PostgresRepository) UpdateEntry(ctx context.Context, table string, e *Entry) error {
	if err := checkTable(table); err != nil {
		return err
	}
	tag, err := r.db.Pool.Exec(ctx,
		fmt.Sprintf(`UPDATE %s SET descripcion = $2 WHERE id = $1`, table),
		e.ID, e.Description,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("la descripcion ya existe en el catalogo")
		}
		return errors.Wrap(err, "updating catalog entry")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("entrada de catalogo", e.ID.String())
	}
	return nil
}

func (r *PostgresRepository) DeleteEntry(ctx context.Context, table string, id types.ID) error {
	if err := checkTable(table); err != nil {
		return err
	}
	tag, err := r.db.Pool.Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table), id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.Conflict("la entrada esta en uso y no puede eliminarse")
		}
		return errors.Wrap(err, "deleting catalog entry")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("entrada de catalogo", id.String())
	}
	return nil
}

// --- Breeds ---

func (r *PostgresRepository) CreateBreed(ctx context.Context, b *Breed) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO razas (id, nombre, tipo_animal_id, created_at) VALUES ($1, $2, $3, $4)`,
		b.ID, b.Name, b.AnimalTypeID, b.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("la raza ya existe")
		}
		if isForeignKeyViolation(err) {
			return errors.BadRequest("el tipo de animal indicado no existe")
		}
		return errors.Wrap(err, "creating breed")
	}
	return nil
}

func (r *PostgresRepository) ListBreeds(ctx context.Context, animalTypeID types.ID) ([]Breed, error) {
	query := `SELECT id, nombre, tipo_animal_id, created_at FROM razas`
	args := []any{}
	if !animalTypeID.IsZero() {
		query += ` WHERE tipo_animal_id = $1`
		args = append(args, animalTypeID)
	}
	query += ` ORDER BY nombre`

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing breeds")
	}
	defer rows.Close()

	breeds := make([]Breed, 0)
	for rows.Next() {
		var b Breed
		if err := rows.Scan(&b.ID, &b.Name, &b.AnimalTypeID, &b.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scanning breed")
		}
		breeds = append(breeds, b)
	}
	return breeds, rows.Err()
}

func (r *PostgresRepository) UpdateBreed(ctx context.Context, b *Breed) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE razas SET nombre = $2, tipo_animal_id = $3 WHERE id = $1`,
		b.ID, b.Name, b.AnimalTypeID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("la raza ya existe")
		}
		if isForeignKeyViolation(err) {
			return errors.BadRequest("el tipo de animal indicado no existe")
		}
		return errors.Wrap(err, "updating breed")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("raza", b.ID.String())
	}
	return nil
}

func (r *PostgresRepository) DeleteBreed(ctx context.Context, id types.ID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM razas WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.Conflict("la raza esta en uso y no puede eliminarse")
		}
		return errors.Wrap(err, "deleting breed")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("raza", id.String())
	}
	return nil
}

// --- Services ---

const serviceColumns = `id, nombre, descripcion, precio, tipo_servicio_id, activo, created_at, updated_at`

func (r *PostgresRepository) CreateService(ctx context.Context, s *Service) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO servicios (id, nombre, descripcion, precio, tipo_servicio_id, activo, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		s.ID, s.Name, s.Description, s.Price, s.ServiceTypeID, s.Active, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.BadRequest("el tipo de servicio indicado no existe")
		}
		return errors.Wrap(err, "creating service")
	}
	return nil
}

func (r *PostgresRepository) FindService(ctx context.Context, id types.ID) (*Service, error) {
	var s Service
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+serviceColumns+` FROM servicios WHERE id = $1`, id,
	).Scan(&s.ID, &s.Name, &s.Description, &s.Price, &s.ServiceTypeID, &s.Active, &s.CreatedAt, &s.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("servicio", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding service")
	}
	return &s, nil
}

func (r *PostgresRepository) ListServices(ctx context.Context, filter ServiceFilter) ([]Service, int, error) {
	where := []string{}
	args := []any{}
	argNum := 1

	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(nombre ILIKE $%d OR descripcion ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}
	if !filter.ServiceTypeID.IsZero() {
		where = append(where, fmt.Sprintf("tipo_servicio_id = $%d", argNum))
		args = append(args, filter.ServiceTypeID)
		argNum++
	}
	if filter.OnlyActive {
		where = append(where, "activo = TRUE")
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
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM servicios`+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting services")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM servicios%s ORDER BY nombre LIMIT $%d OFFSET $%d`,
		serviceColumns, whereClause, argNum, argNum+1,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing services")
	}
	defer rows.Close()

	services := make([]Service, 0)
	for rows.Next() {
		var s Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.Price, &s.ServiceTypeID, &s.Active, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, errors.Wrap(err, "scanning service")
		}
		services = append(services, s)
	}
	return services, total, rows.Err()
}

func (r *PostgresRepository) UpdateService(ctx context.Context, s *Service) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE servicios
		SET nombre = $2, descripcion = $3, precio = $4, tipo_servicio_id = $5, activo = $6, updated_at = $7
		WHERE id = $1`,
		s.ID, s.Name, s.Description, s.Price, s.ServiceTypeID, s.Active, s.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.BadRequest("el tipo de servicio indicado no existe")
		}
		return errors.Wrap(err, "updating service")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("servicio", s.ID.String())
	}
	return nil
}

func (r *PostgresRepository) ServiceStats(ctx context.Context) (*ServiceStats, error) {
	var stats ServiceStats
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE activo),
		       COALESCE(AVG(precio) FILTER (WHERE activo), 0)
		FROM servicios`,
	).Scan(&stats.Total, &stats.Active, &stats.AveragePrice)
	if err != nil {
		return nil, errors.Wrap(err, "querying service stats")
	}
	return &stats, nil
}

// --- Pathologies ---

const pathologyColumns = `id, nombre, descripcion, especie_afectada, gravedad, es_cronica, es_contagiosa, created_at`

func (r *PostgresRepository) CreatePathology(ctx context.Context, p *Pathology) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO patologias (id, nombre, descripcion, especie_afectada, gravedad, es_cronica, es_contagiosa, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.Name, p.Description, p.AffectedSpecies, p.Severity, p.Chronic, p.Contagious, p.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("la patologia ya existe")
		}
		return errors.Wrap(err, "creating pathology")
	}
	return nil
}

func (r *PostgresRepository) FindPathology(ctx context.Context, id types.ID) (*Pathology, error) {
	var p Pathology
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+pathologyColumns+` FROM patologias WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.AffectedSpecies, &p.Severity, &p.Chronic, &p.Contagious, &p.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patologia", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding pathology")
	}
	return &p, nil
}

func (r *PostgresRepository) ListPathologies(ctx context.Context, filter PathologyFilter) ([]Pathology, int, error) {
	where := []string{}
	args := []any{}
	argNum := 1

	if filter.Search != "" {
		where = append(where, fmt.Sprintf("(nombre ILIKE $%d OR descripcion ILIKE $%d)", argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}
	if filter.Species != "" {
		where = append(where, fmt.Sprintf("especie_afectada ILIKE $%d", argNum))
		args = append(args, filter.Species)
		argNum++
	}
	if filter.Severity != "" {
		where = append(where, fmt.Sprintf("gravedad = $%d", argNum))
		args = append(args, filter.Severity)
		argNum++
	}
	if filter.Chronic != nil {
		where = append(where, fmt.Sprintf("es_cronica = $%d", argNum))
		args = append(args, *filter.Chronic)
		argNum++
	}
	if filter.Contagious != nil {
		where = append(where, fmt.Sprintf("es_contagiosa = $%d", argNum))
		args = append(args, *filter.Contagious)
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
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM patologias`+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting pathologies")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM patologias%s ORDER BY nombre LIMIT $%d OFFSET $%d`,
		pathologyColumns, whereClause, argNum, argNum+1,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing pathologies")
	}
	defer rows.Close()

	pathologies := make([]Pathology, 0)
	for rows.Next() {
		var p Pathology
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.AffectedSpecies, &p.Severity, &p.Chronic, &p.Contagious, &p.CreatedAt); err != nil {
			return nil, 0, errors.Wrap(err, "scanning pathology")
		}
		pathologies = append(pathologies, p)
	}
	return pathologies, total, rows.Err()
}

func (r *PostgresRepository) UpdatePathology(ctx context.Context, p *Pathology) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE patologias
		SET nombre = $2, descripcion = $3, especie_afectada = $4, gravedad = $5, es_cronica = $6, es_contagiosa = $7
		WHERE id = $1`,
		p.ID, p.Name, p.Description, p.AffectedSpecies, p.Severity, p.Chronic, p.Contagious,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("la patologia ya existe")
		}
		return errors.Wrap(err, "updating pathology")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("patologia", p.ID.String())
	}
	return nil
}

func (r *PostgresRepository) DeletePathology(ctx context.Context, id types.ID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM patologias WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.Conflict("la patologia esta referenciada por diagnosticos")
		}
		return errors.Wrap(err, "deleting pathology")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("patologia", id.String())
	}
	return nil
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
