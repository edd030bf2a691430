package user

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/colitas-felices/clinic/internal/shared/database"
	"github.com/colitas-felices/clinic/internal/shared/errors"
	"github.com/colitas-felices/clinic/internal/shared/types"
	"github.com/colitas-felices/clinic/internal/staff"
)

type PostgresRepository struct {
	db *database.DB
}

func NewPostgresRepository(db *database.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, username, password_hash, tipo, estado, created_at, updated_at`

func (r *PostgresRepository) CreateWithVeterinarian(ctx context.Context, u *User, v *staff.Veterinarian) error {
	return r.createWithProfile(ctx, u, func(tx pgx.Tx) error {
		return staff.InsertVeterinarian(ctx, tx, v)
	})
}

func (r *PostgresRepository) CreateWithReceptionist(ctx context.Context, u *User, rec *staff.Receptionist) error {
	return r.createWithProfile(ctx, u, func(tx pgx.Tx) error {
		return staff.InsertReceptionist(ctx, tx, rec)
	})
}

func (r *PostgresRepository) CreateWithAdministrator(ctx context.Context, u *User, adm *staff.Administrator) error {
	return r.createWithProfile(ctx, u, func(tx pgx.Tx) error {
		return staff.InsertAdministrator(ctx, tx, adm)
	})
}

// createWithProfile commits the account and its profile atomically. If
// the profile insert fails the account insert rolls back too.
func (r *PostgresRepository) createWithProfile(ctx context.Context, u *User, insertProfile func(pgx.Tx) error) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO usuarios (id, username, password_hash, tipo, estado, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Username, u.PasswordHash, u.Role, u.Status, u.CreatedAt, u.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Conflict("el nombre de usuario ya existe")
		}
		return errors.Wrap(err, "creating user")
	}

	if err := insertProfile(tx); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*User, error) {
	return r.userBy(ctx, "id = $1", id)
}

func (r *PostgresRepository) FindByUsername(ctx context.Context, username string) (*User, error) {
	return r.userBy(ctx, "username = $1", username)
}

func (r *PostgresRepository) userBy(ctx context.Context, cond string, arg any) (*User, error) {
	var u User
	err := r.db.Pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM usuarios WHERE `+cond, arg,
	).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("usuario", fmt.Sprint(arg))
	}
	if err != nil {
		return nil, errors.Wrap(err, "finding user")
	}
	return &u, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]User, int, error) {
	where := []string{}
	args := []any{}
	argNum := 1

	if filter.Search != "" {
		where = append(where, fmt.Sprintf("username ILIKE $%d", argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}
	if filter.Role != "" {
		where = append(where, fmt.Sprintf("tipo = $%d", argNum))
		args = append(args, filter.Role)
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
	if err := r.db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM usuarios`+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "counting users")
	}

	query := fmt.Sprintf(
		`SELECT %s FROM usuarios%s ORDER BY username LIMIT $%d OFFSET $%d`,
		userColumns, whereClause, argNum, argNum+1,
	)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "listing users")
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Status, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, 0, errors.Wrap(err, "scanning user")
		}
		users = append(users, u)
	}
	return users, total, rows.Err()
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, u *User) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE usuarios SET estado = $2, updated_at = $3 WHERE id = $1`,
		u.ID, u.Status, u.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "updating user status")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("usuario", u.ID.String())
	}
	return nil
}

func (r *PostgresRepository) UpdatePassword(ctx context.Context, u *User) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE usuarios SET password_hash = $2, updated_at = $3 WHERE id = $1`,
		u.ID, u.PasswordHash, u.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "updating password")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("usuario", u.ID.String())
	}
	return nil
}

func (r *PostgresRepository) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByRole:   map[string]int{},
		ByStatus: map[string]int{},
	}

	rows, err := r.db.Pool.Query(ctx,
		`SELECT tipo, estado, COUNT(*) FROM usuarios GROUP BY tipo, estado`)
	if err != nil {
		return nil, errors.Wrap(err, "querying user stats")
	}
	defer rows.Close()

	for rows.Next() {
		var role, status string
		var count int
		if err := rows.Scan(&role, &status, &count); err != nil {
			return nil, errors.Wrap(err, "scanning user stats")
		}
		stats.Total += count
		stats.ByRole[role] += count
		stats.ByStatus[status] += count
	}
	return stats, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
