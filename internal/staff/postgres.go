package staff

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

const vetColumns = `id, usuario_id, nombre, apellido_paterno, apellido_materno, dni, email, telefono,
	codigo_cmvp, especialidad_id, turno, disposicion, fecha_nacimiento, genero, created_at, updated_at`

// InsertVeterinarian writes a new profile inside the caller's
// transaction. Used by account creation so user and profile commit
// together.
func InsertVeterinarian(ctx context.Context, tx pgx.Tx, v *Veterinarian) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO veterinarios (id, usuario_id, nombre, apellido_paterno, apellido_materno, dni, email, telefono,
			codigo_cmvp, especialidad_id, turno, disposicion, fecha_nacimiento, genero, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		v.ID, v.UserID, v.FirstName, v.PaternalName, v.MaternalName, v.DNI, v.Email, v.Phone,
		v.CMVPCode, v.SpecialtyID, v.Shift, v.Availability, v.BirthDate, v.Gender, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("ya existe un veterinario con ese DNI, correo o codigo CMVP")
		}
		if isForeignKeyViolation(err) {
			return errors.BadRequest("la especialidad indicada no existe")
		}
		return errors.Wrap(err, "creating veterinarian")
	}
	return nil
}

func InsertReceptionist(ctx context.Context, tx pgx.Tx, rec *Receptionist) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO recepcionistas (id, usuario_id, nombre, apellido_paterno, apellido_materno, dni, email, telefono,
			turno, fecha_nacimiento, genero, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		rec.ID, rec.UserID, rec.FirstName, rec.PaternalName, rec.MaternalName, rec.DNI, rec.Email, rec.Phone,
		rec.Shift, rec.BirthDate, rec.Gender, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("ya existe un recepcionista con ese DNI o correo")
		}
		return errors.Wrap(err, "creating receptionist")
	}
	return nil
}

func InsertAdministrator(ctx context.Context, tx pgx.Tx, adm *Administrator) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO administradores (id, usuario_id, nombre, apellido_paterno, apellido_materno, dni, email, telefono,
			fecha_nacimiento, genero, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		adm.ID, adm.UserID, adm.FirstName, adm.PaternalName, adm.MaternalName, adm.DNI, adm.Email, adm.Phone,
		adm.BirthDate, adm.Gender, adm.CreatedAt, adm.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("ya existe un administrador con ese DNI o correo")
		}
		return errors.Wrap(err, "creating administrator")
	}
	return nil
}

// --- Veterinarians ---

func (r *PostgresRepository) FindVeterinarian(ctx context.Context, id types.ID) (*Veterinarian, error) {
	return r.vetBy(ctx, "id = $1", id)
}

func (r *PostgresRepository) FindVeterinarianByUser(ctx context.Context, userID types.ID) (*Veterinarian, error) {
	return r.vetBy(ctx, "usuario_id = $1", userID)
}

func (r *PostgresRepository) FindVeterinarianByCMVP(ctx context.Context, code string) (*Veterinarian, error) {
	return r.vetBy(ctx, "codigo_cmvp = $1", code)
}

func (r *PostgresRepository) vetBy(ctx context.Context, cond string, arg any) (*Veterinarian, error) {
	var v Veterinarian
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+vetColumns+` FROM veterinarios WHERE `+cond, arg,
	).Scan(
		&v.ID, &v.UserID, &v.FirstName, &v.PaternalName, &v.MaternalName, &v.DNI, &v.Email, &v.Phone,
		&v.CMVPCode, &v.SpecialtyID, &v.Shift, &v.Availability, &v.BirthDate, &v.Gender, &v.CreatedAt, &v.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("veterinario", fmt.Sprint(arg))
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding veterinarian")
	}
	return &v, nil
}

func (r *PostgresRepository) ListVeterinarians(ctx context.Context, filter VetFilter) ([]Veterinarian, int, error) {
	where := []string{}
	args := []any{}
	argNum := 1

	if filter.Search != "" {
		where = append(where, fmt.Sprintf(
			"(nombre ILIKE $%d OR apellido_paterno ILIKE $%d OR codigo_cmvp ILIKE $%d OR dni LIKE $%d)",
			argNum, argNum, argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}
	if !filter.SpecialtyID.IsZero() {
		where = append(where, fmt.Sprintf("especialidad_id = $%d", argNum))
		args = append(args, filter.SpecialtyID)
		argNum++
	}
	if filter.Shift != "" {
		where = append(where, fmt.Sprintf("turno = $%d", argNum))
		args = append(args, filter.Shift)
		argNum++
	}
	if filter.OnlyFree {
		where = append(where, fmt.Sprintf("disposicion = $%d", argNum))
		args = append(args, AvailabilityFree)
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
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM veterinarios`+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting veterinarians")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM veterinarios%s ORDER BY apellido_paterno, nombre LIMIT $%d OFFSET $%d`,
		vetColumns, whereClause, argNum, argNum+1,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing veterinarians")
	}
	defer rows.Close()

	vets := make([]Veterinarian, 0)
	for rows.Next() {
		var v Veterinarian
		if err := rows.Scan(
			&v.ID, &v.UserID, &v.FirstName, &v.PaternalName, &v.MaternalName, &v.DNI, &v.Email, &v.Phone,
			&v.CMVPCode, &v.SpecialtyID, &v.Shift, &v.Availability, &v.BirthDate, &v.Gender, &v.CreatedAt, &v.UpdatedAt,
		); err != nil {
			return nil, 0, errors.Wrap(err, "scanning veterinarian")
		}
		vets = append(vets, v)
	}
	return vets, total, rows.Err()
}

func (r *PostgresRepository) UpdateVeterinarian(ctx context.Context, v *Veterinarian) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE veterinarios
		SET nombre = $2, apellido_paterno = $3, apellido_materno = $4, email = $5, telefono = $6,
		    codigo_cmvp = $7, especialidad_id = $8, turno = $9, updated_at = now()
		WHERE id = $1`,
		v.ID, v.FirstName, v.PaternalName, v.MaternalName, v.Email, v.Phone,
		v.CMVPCode, v.SpecialtyID, v.Shift,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("ya existe un veterinario con ese correo o codigo CMVP")
		}
		if isForeignKeyViolation(err) {
			return errors.BadRequest("la especialidad indicada no existe")
		}
		return errors.Wrap(err, "updating veterinarian")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("veterinario", v.ID.String())
	}
	return nil
}

func (r *PostgresRepository) SetAvailability(ctx context.Context, id types.ID, availability Availability) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE veterinarios SET disposicion = $2, updated_at = now() WHERE id = $1`,
		id, availability,
	)
	if err != nil {
		return errors.Wrap(err, "updating availability")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("veterinario", id.String())
	}
	return nil
}

// --- Receptionists ---

const receptionistColumns = `id, usuario_id, nombre, apellido_paterno, apellido_materno, dni, email, telefono,
	turno, fecha_nacimiento, genero, created_at, updated_at`

func (r *PostgresRepository) FindReceptionist(ctx context.Context, id types.ID) (*Receptionist, error) {
	return r.receptionistBy(ctx, "id = $1", id)
}

func (r *PostgresRepository) FindReceptionistByUser(ctx context.Context, userID types.ID) (*Receptionist, error) {
	return r.receptionistBy(ctx, "usuario_id = $1", userID)
}

func (r *PostgresRepository) receptionistBy(ctx context.Context, cond string, arg any) (*Receptionist, error) {
	var rec Receptionist
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+receptionistColumns+` FROM recepcionistas WHERE `+cond, arg,
	).Scan(
		&rec.ID, &rec.UserID, &rec.FirstName, &rec.PaternalName, &rec.MaternalName, &rec.DNI, &rec.Email, &rec.Phone,
		&rec.Shift, &rec.BirthDate, &rec.Gender, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("recepcionista", fmt.Sprint(arg))
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding receptionist")
	}
	return &rec, nil
}

func (r *PostgresRepository) ListReceptionists(ctx context.Context, search string, limit, offset int) ([]Receptionist, int, error) {
	where := ""
	args := []any{}
	if search != "" {
		where = ` WHERE nombre ILIKE $1 OR apellido_paterno ILIKE $1 OR dni LIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM recepcionistas`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting receptionists")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM recepcionistas%s ORDER BY apellido_paterno, nombre LIMIT $%d OFFSET $%d`,
		receptionistColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing receptionists")
	}
	defer rows.Close()

	recs := make([]Receptionist, 0)
	for rows.Next() {
		var rec Receptionist
		if err := rows.Scan(
			&rec.ID, &rec.UserID, &rec.FirstName, &rec.PaternalName, &rec.MaternalName, &rec.DNI, &rec.Email, &rec.Phone,
			&rec.Shift, &rec.BirthDate, &rec.Gender, &rec.CreatedAt, &rec.UpdatedAt,
		); err != nil {
			return nil, 0, errors.Wrap(err, "scanning receptionist")
		}
		recs = append(recs, rec)
	}
	return recs, total, rows.Err()
}

func (r *PostgresRepository) UpdateReceptionist(ctx context.Context, rec *Receptionist) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE recepcionistas
		SET nombre = $2, apellido_paterno = $3, apellido_materno = $4, email = $5, telefono = $6,
		    turno = $7, updated_at = now()
		WHERE id = $1`,
		rec.ID, rec.FirstName, rec.PaternalName, rec.MaternalName, rec.Email, rec.Phone, rec.Shift,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("ya existe un recepcionista con ese correo")
		}
		return errors.Wrap(err, "updating receptionist")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("recepcionista", rec.ID.String())
	}
	return nil
}

// --- Administrators ---

const adminColumns = `id, usuario_id, nombre, apellido_paterno, apellido_materno, dni, email, telefono,
	fecha_nacimiento, genero, created_at, updated_at`

func (r *PostgresRepository) FindAdministrator(ctx context.Context, id types.ID) (*Administrator, error) {
	return r.adminBy(ctx, "id = $1", id)
}

func (r *PostgresRepository) FindAdministratorByUser(ctx context.Context, userID types.ID) (*Administrator, error) {
	return r.adminBy(ctx, "usuario_id = $1", userID)
}

func (r *PostgresRepository) adminBy(ctx context.Context, cond string, arg any) (*Administrator, error) {
	var adm Administrator
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+adminColumns+` FROM administradores WHERE `+cond, arg,
	).Scan(
		&adm.ID, &adm.UserID, &adm.FirstName, &adm.PaternalName, &adm.MaternalName, &adm.DNI, &adm.Email, &adm.Phone,
		&adm.BirthDate, &adm.Gender, &adm.CreatedAt, &adm.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("administrador", fmt.Sprint(arg))
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding administrator")
	}
	return &adm, nil
}

func (r *PostgresRepository) ListAdministrators(ctx context.Context, search string, limit, offset int) ([]Administrator, int, error) {
	where := ""
	args := []any{}
	if search != "" {
		where = ` WHERE nombre ILIKE $1 OR apellido_paterno ILIKE $1 OR dni LIKE $1`
		args = append(args, "%"+search+"%")
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM administradores`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting administrators")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM administradores%s ORDER BY apellido_paterno, nombre LIMIT $%d OFFSET $%d`,
		adminColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing administrators")
	}
	defer rows.Close()

	admins := make([]Administrator, 0)
	for rows.Next() {
		var adm Administrator
		if err := rows.Scan(
			&adm.ID, &adm.UserID, &adm.FirstName, &adm.PaternalName, &adm.MaternalName, &adm.DNI, &adm.Email, &adm.Phone,
			&adm.BirthDate, &adm.Gender, &adm.CreatedAt, &adm.UpdatedAt,
		); err != nil {
			return nil, 0, errors.Wrap(err, "scanning administrator")
		}
		admins = append(admins, adm)
	}
	return admins, total, rows.Err()
}

func (r *PostgresRepository) UpdateAdministrator(ctx context.Context, adm *Administrator) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE administradores
		SET nombre = $2, apellido_paterno = $3, apellido_materno = $4, email = $5, telefono = $6, updated_at = now()
		WHERE id = $1`,
		adm.ID, adm.FirstName, adm.PaternalName, adm.MaternalName, adm.Email, adm.Phone,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("ya existe un administrador con ese correo")
		}
		return errors.Wrap(err, "updating administrator")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("administrador", adm.ID.String())
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
