package repo

import (
	"context"
	"database/sql"

	"github.com/Halamis85/lpa-web-v2/internal/domain"
)

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) (domain.User, error) {
	res, err := tx.ExecContext(ctx, `INSERT INTO users(name,email,roles,is_active) VALUES (?,?,?,?)`,
		u.Name, u.Email, domain.JoinRoles(u.Roles), boolToInt(u.IsActive))
	if err != nil {
		return u, err
	}
	u.ID, err = res.LastInsertId()
	return u, err
}

func scanUser(row *sql.Row) (domain.User, error) {
	var u domain.User
	var roles string
	var active int
	err := row.Scan(&u.ID, &u.Name, &u.Email, &roles, &active)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	u.Roles = domain.ParseRoles(roles)
	u.IsActive = active != 0
	return u, err
}

func (r Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,name,email,roles,is_active FROM users WHERE id=?`, id))
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT id,name,email,roles,is_active FROM users WHERE email=?`, email))
}

func (r Repo) listUsers(ctx context.Context, query string, args ...any) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		var roles string
		var active int
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &roles, &active); err != nil {
			return nil, err
		}
		u.Roles = domain.ParseRoles(roles)
		u.IsActive = active != 0
		res = append(res, u)
	}
	return res, rows.Err()
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	return r.listUsers(ctx, `SELECT id,name,email,roles,is_active FROM users ORDER BY id ASC`)
}

// ActiveUsersWithRole drives the allocation planner: ordering must be
// stable across calls with the same data.
func (r Repo) ActiveUsersWithRole(ctx context.Context, role domain.Role) ([]domain.User, error) {
	users, err := r.listUsers(ctx, `SELECT id,name,email,roles,is_active FROM users WHERE is_active=1 ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	var res []domain.User
	for _, u := range users {
		if u.HasRole(role) {
			res = append(res, u)
		}
	}
	return res, nil
}

func (r Repo) UpdateUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	res, err := tx.ExecContext(ctx, `UPDATE users SET name=?,email=?,roles=?,is_active=? WHERE id=?`,
		u.Name, u.Email, domain.JoinRoles(u.Roles), boolToInt(u.IsActive), u.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
