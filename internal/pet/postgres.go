package pet

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

const petColumns = `id, nombre, sexo, color, edad_anios, edad_meses, esterilizado, imagen, raza_id, created_at, updated_at`

// Create inserts the pet and its first ownership link in one
// transaction. A pet never exists without an owner.
func (r *PostgresRepository) Create(ctx context.Context, p *Pet, ownerID types.ID) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO mascotas (id, nombre, sexo, color, edad_anios, edad_meses, esterilizado, imagen, raza_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.Name, p.Sex, p.Color, p.AgeYears, p.AgeMonths, p.Sterilized, p.ImageURL, p.BreedID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.BadRequest("la raza indicada no existe")
		}
		return errors.Wrap(err, "creating pet")
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO clientes_mascotas (cliente_id, mascota_id) VALUES ($1, $2)`,
		ownerID, p.ID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.BadRequest("el cliente indicado no existe")
		}
		return errors.Wrap(err, "linking owner")
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*Pet, error) {
	var p Pet
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+petColumns+` FROM mascotas WHERE id = $1`, id,
	).Scan(
		&p.ID, &p.Name, &p.Sex, &p.Color, &p.AgeYears, &p.AgeMonths,
		&p.Sterilized, &p.ImageURL, &p.BreedID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("mascota", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding pet")
	}
	return &p, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Pet, int, error) {
	where := []string{}
	args := []any{}
	argNum := 1

	join := ""
	if !filter.ClientID.IsZero() {
		join = ` JOIN clientes_mascotas cm ON cm.mascota_id = m.id`
		where = append(where, fmt.Sprintf("cm.cliente_id = $%d", argNum))
		args = append(args, filter.ClientID)
		argNum++
	}
	if !filter.BreedID.IsZero() {
		where = append(where, fmt.Sprintf("m.raza_id = $%d", argNum))
		args = append(args, filter.BreedID)
		argNum++
	}
	if filter.Search != "" {
		where = append(where, fmt.Sprintf("m.nombre ILIKE $%d", argNum))
		args = append(args, "%"+filter.Search+"%")
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
	countQuery := `SELECT COUNT(*) FROM mascotas m` + join + whereClause
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting pets")
	}

	query := fmt.Sprintf(
		`SELECT m.id, m.nombre, m.sexo, m.color, m.edad_anios, m.edad_meses, m.esterilizado, m.imagen, m.raza_id, m.created_at, m.updated_at
		 FROM mascotas m%s%s ORDER BY m.nombre LIMIT $%d OFFSET $%d`,
		join, whereClause, argNum, argNum+1,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing pets")
	}
	defer rows.Close()

	pets := make([]Pet, 0)
	for rows.Next() {
		var p Pet
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Sex, &p.Color, &p.AgeYears, &p.AgeMonths,
			&p.Sterilized, &p.ImageURL, &p.BreedID, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, 0, errors.Wrap(err, "scanning pet")
		}
		pets = append(pets, p)
	}
	return pets, total, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, p *Pet) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE mascotas
		SET nombre = $2, color = $3, edad_anios = $4, edad_meses = $5,
		    esterilizado = $6, imagen = $7, raza_id = $8, updated_at = $9
		WHERE id = $1`,
		p.ID, p.Name, p.Color, p.AgeYears, p.AgeMonths, p.Sterilized, p.ImageURL, p.BreedID, p.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return errors.BadRequest("la raza indicada no existe")
		}
		return errors.Wrap(err, "updating pet")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("mascota", p.ID.String())
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id types.ID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM mascotas WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting pet")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("mascota", id.String())
	}
	return nil
}

func (r *PostgresRepository) Owners(ctx context.Context, petID types.ID) ([]types.ID, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT cliente_id FROM clientes_mascotas WHERE mascota_id = $1 ORDER BY created_at`, petID)
	if err != nil {
		return nil, errors.Wrap(err, "listing owners")
	}
	defer rows.Close()

	owners := make([]types.ID, 0)
	for rows.Next() {
		var id types.ID
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning owner")
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

func (r *PostgresRepository) LinkOwner(ctx context.Context, petID, clientID types.ID) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO clientes_mascotas (cliente_id, mascota_id) VALUES ($1, $2)`,
		clientID, petID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("el cliente ya es propietario de esta mascota")
		}
		if isForeignKeyViolation(err) {
			return errors.BadRequest("cliente o mascota inexistente")
		}
		return errors.Wrap(err, "linking owner")
	}
	return nil
}

// UnlinkOwner removes an ownership link. The last owner cannot be
// removed.
func (r *PostgresRepository) UnlinkOwner(ctx context.Context, petID, clientID types.ID) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	var count int
	if err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM clientes_mascotas WHERE mascota_id = $1`, petID,
	).Scan(&count); err != nil {
		return errors.Wrap(err, "counting owners")
	}
	if count <= 1 {
		return errors.Conflict("la mascota debe conservar al menos un propietario")
	}

	tag, err := tx.Exec(ctx,
		`DELETE FROM clientes_mascotas WHERE mascota_id = $1 AND cliente_id = $2`,
		petID, clientID,
	)
	if err != nil {
		return errors.Wrap(err, "unlinking owner")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("vinculo cliente-mascota", clientID.String())
	}

	return tx.Commit(ctx)
}

// TransferOwner replaces one owner with another atomically.
func (r *PostgresRepository) TransferOwner(ctx context.Context, petID, fromClientID, toClientID types.ID) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`DELETE FROM clientes_mascotas WHERE mascota_id = $1 AND cliente_id = $2`,
		petID, fromClientID,
	)
	if err != nil {
		return errors.Wrap(err, "removing previous owner")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("vinculo cliente-mascota", fromClientID.String())
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO clientes_mascotas (cliente_id, mascota_id) VALUES ($1, $2)`,
		toClientID, petID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("el cliente destino ya es propietario de esta mascota")
		}
		if isForeignKeyViolation(err) {
			return errors.BadRequest("el cliente destino no existe")
		}
		return errors.Wrap(err, "adding new owner")
	}

	return tx.Commit(ctx)
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
