package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/agriplan/internal/apperr"
	"github.com/iliyamo/agriplan/internal/model"
)

// UserRepo persists accounts and their quota counters in the `users` table.
// Every mutation is a single statement so that concurrent requests touching
// the same row are serialised by the database.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,username,password_hash,role,status,usage_daily,limit_daily,created_at,updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (model.User, error) {
	var u model.User
	err := s.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.Status,
		&u.UsageDaily, &u.LimitDaily, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, apperr.ErrUserNotFound
	}
	return u, err
}

// Create inserts a user row and returns its ID.  The caller supplies an
// already hashed password.
func (r *UserRepo) Create(ctx context.Context, username, passwordHash, role, status string, limitDaily int) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, password_hash, role, status, usage_daily, limit_daily) VALUES (?,?,?,?,0,?)",
		username, passwordHash, role, status, limitDaily)
	if err != nil {
		if isDuplicateKey(err) {
			return 0, apperr.ErrDuplicateUsername
		}
		return 0, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// GetByUsername fetches a user by exact (case-sensitive) username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE username=? LIMIT 1", username))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? LIMIT 1", id))
}

// List returns every user ordered by id.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	users := []model.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Reserve takes one unit of the user's daily quota in a single conditional
// statement.  It returns true when the row was approved and below its
// limit; two concurrent callers can never both take the last unit.  The
// returned epoch is the reset generation the unit was charged to and must
// be handed back to Release.  It is read inside the same transaction, so a
// concurrent ResetUsage lands either before or after both statements.
func (r *UserRepo) Reserve(ctx context.Context, id uint64) (epoch uint64, ok bool, err error) {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("reserve quota: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE users SET usage_daily = usage_daily + 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND status = ? AND usage_daily < limit_daily`,
		id, model.StatusApproved)
	if err != nil {
		return 0, false, fmt.Errorf("reserve quota: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if n != 1 {
		return 0, false, nil
	}
	if err := tx.QueryRowContext(ctx, "SELECT usage_epoch FROM users WHERE id = ?", id).Scan(&epoch); err != nil {
		return 0, false, fmt.Errorf("read usage epoch: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, fmt.Errorf("reserve quota: %w", err)
	}
	committed = true
	return epoch, true, nil
}

// Release gives back one unit taken by Reserve in the given epoch.  A unit
// charged before the latest ResetUsage is already gone, so releasing it
// changes nothing; the counter never drops below zero either way.
func (r *UserRepo) Release(ctx context.Context, id, epoch uint64) error {
	_, err := r.DB.ExecContext(ctx,
		`UPDATE users SET usage_daily = usage_daily - 1, updated_at = CURRENT_TIMESTAMP
		 WHERE id = ? AND usage_epoch = ? AND usage_daily > 0`, id, epoch)
	if err != nil {
		return fmt.Errorf("release quota: %w", err)
	}
	return nil
}

// UpdateLimit sets limit_daily.
func (r *UserRepo) UpdateLimit(ctx context.Context, id uint64, limit int) error {
	return r.execOne(ctx, id,
		"UPDATE users SET limit_daily = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", limit)
}

// ResetUsage sets usage_daily back to zero and starts a new epoch, which
// voids refunds for units reserved before the reset.
func (r *UserRepo) ResetUsage(ctx context.Context, id uint64) error {
	return r.execOne(ctx, id,
		"UPDATE users SET usage_daily = 0, usage_epoch = usage_epoch + 1, updated_at = CURRENT_TIMESTAMP WHERE id = ?")
}

// UpdateStatus moves the user to status when its current status is one of
// from.  It returns apperr.ErrUserNotFound for unknown ids and
// apperr.ErrInvalidTransition when the row is in another state.
func (r *UserRepo) UpdateStatus(ctx context.Context, id uint64, status string, from []string) error {
	if len(from) == 0 {
		return apperr.ErrInvalidTransition
	}
	query := "UPDATE users SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status IN (?"
	args := []any{status, id, from[0]}
	for _, s := range from[1:] {
		query += ",?"
		args = append(args, s)
	}
	query += ")"
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	u, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if u.Status == status {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, u.Status, status)
}

// execOne runs a single-row update whose last placeholder is the user id
// and maps "no row matched" to apperr.ErrUserNotFound.
func (r *UserRepo) execOne(ctx context.Context, id uint64, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, append(args, id)...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Some drivers report zero for updates that change nothing; confirm
		// the row really is missing before failing.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
