package client

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

// PostgresRepository implements Repository on PostgreSQL.
type PostgresRepository struct {
	db *database.DB
}

func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const clientColumns = `id, nombre, apellido_paterno, apellido_materno, dni, email, telefono, direccion, created_at, updated_at`

func (r *PostgresRepository) Create(ctx context.Context, c *Client) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO clientes (id, nombre, apellido_paterno, apellido_materno, dni, email, telefono, direccion, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		c.ID, c.FirstName, c.PaternalName, c.MaternalName, c.DNI, c.Email, c.Phone, c.Address, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("ya existe un cliente con ese DNI o correo")
		}
		return errors.Wrap(err, "creating client")
	}
	return nil
}

func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*Client, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clientes WHERE id = $1`, id)
	return scanClient(row, id.String())
}

func (r *PostgresRepository) FindByDNI(ctx context.Context, dni types.DNI) (*Client, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+clientColumns+` FROM clientes WHERE dni = $1`, dni)
	return scanClient(row, dni.String())
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]Client, int, error) {
	where := ""
	args := []any{}
	if filter.Search != "" {
		where = ` WHERE nombre ILIKE $1 OR apellido_paterno ILIKE $1 OR apellido_materno ILIKE $1 OR dni LIKE $1 OR email ILIKE $1`
		args = append(args, "%"+filter.Search+"%")
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM clientes`+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting clients")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM clientes%s ORDER BY apellido_paterno, nombre LIMIT $%d OFFSET $%d`,
		clientColumns, where, len(args)+1, len(args)+2,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing clients")
	}
	defer rows.Close()

	clients := make([]Client, 0)
	for rows.Next() {
		var c Client
		if err := rows.Scan(
			&c.ID, &c.FirstName, &c.PaternalName, &c.MaternalName,
			&c.DNI, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, 0, errors.Wrap(err, "scanning client")
		}
		clients = append(clients, c)
	}
	return clients, total, rows.Err()
}

func (r *PostgresRepository) Update(ctx context.Context, c *Client) error {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE clientes
		SET nombre = $2, apellido_paterno = $3, apellido_materno = $4,
		    email = $5, telefono = $6, direccion = $7, updated_at = $8
		WHERE id = $1`,
		c.ID, c.FirstName, c.PaternalName, c.MaternalName, c.Email, c.Phone, c.Address, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("ya existe un cliente con ese correo")
		}
		return errors.Wrap(err, "updating client")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("cliente", c.ID.String())
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id types.ID) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM clientes WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "deleting client")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("cliente", id.String())
	}
	return nil
}

func scanClient(row pgx.Row, ref string) (*Client, error) {
	var c Client
	err := row.Scan(
		&c.ID, &c.FirstName, &c.PaternalName, &c.MaternalName,
		&c.DNI, &c.Email, &c.Phone, &c.Address, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("cliente", ref)
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding client")
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
