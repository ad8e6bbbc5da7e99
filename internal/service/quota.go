package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/iliyamo/agriplan/internal/apperr"
	"github.com/iliyamo/agriplan/internal/model"
	"github.com/iliyamo/agriplan/internal/repository"
)

// MaxDailyLimit is the largest limit_daily an admin may set.
const MaxDailyLimit = 100000

// QuotaController admits analyses against each user's daily limit and
// carries out the admin edits on the same counters.
type QuotaController struct {
	Users *repository.UserRepo
	log   *zap.Logger
}

func NewQuotaController(users *repository.UserRepo, log *zap.Logger) *QuotaController {
	if log == nil {
		log = zap.NewNop()
	}
	return &QuotaController{Users: users, log: log.Named("quota")}
}

// Reservation is one admitted unit of quota.  The unit is already counted
// in usage_daily; Commit keeps it and Release gives it back.  Whichever is
// called first wins and later calls are no-ops.
type Reservation struct {
	UserID uint64
	Epoch  uint64 // reset generation the unit was charged to

	q    *QuotaController
	mu   sync.Mutex
	done bool
}

// CheckAndReserve takes one unit of quota for userID in a single atomic
// statement.  When nothing was taken the row is read to explain why.
func (q *QuotaController) CheckAndReserve(ctx context.Context, userID uint64) (*Reservation, error) {
	epoch, ok, err := q.Users.Reserve(ctx, userID)
	if err != nil {
		return nil, err
	}
	if ok {
		return &Reservation{UserID: userID, Epoch: epoch, q: q}, nil
	}

	u, err := q.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	switch u.Status {
	case model.StatusBanned:
		return nil, apperr.ErrAccountBanned
	case model.StatusPending:
		return nil, apperr.ErrAccountPending
	}
	return nil, fmt.Errorf("%w: %d of %d used", apperr.ErrQuotaExceeded, u.UsageDaily, u.LimitDaily)
}

// Commit makes the charge final.
func (r *Reservation) Commit(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = true
	return nil
}

// Release refunds the unit unless the reservation was already committed or
// released.  A unit reserved before an admin reset is not refunded, since
// the reset already cleared it.
func (r *Reservation) Release(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil
	}
	if err := r.q.Users.Release(ctx, r.UserID, r.Epoch); err != nil {
		r.q.log.Error("quota refund failed", zap.Uint64("user_id", r.UserID), zap.Error(err))
		return err
	}
	r.done = true
	return nil
}

// List returns every account for the admin view.
func (q *QuotaController) List(ctx context.Context) ([]model.User, error) {
	return q.Users.List(ctx)
}

// SetLimit changes limit_daily.  Limits outside 1..MaxDailyLimit are
// refused.  Lowering the limit below the current usage simply blocks
// further analyses until a reset.
func (q *QuotaController) SetLimit(ctx context.Context, userID uint64, limit int) error {
	if limit <= 0 || limit > MaxDailyLimit {
		return fmt.Errorf("%w: limit must be between 1 and %d", apperr.ErrInvalidInput, MaxDailyLimit)
	}
	if err := q.Users.UpdateLimit(ctx, userID, limit); err != nil {
		return err
	}
	q.log.Info("limit updated", zap.Uint64("user_id", userID), zap.Int("limit", limit))
	return nil
}

// ResetUsage sets usage_daily to zero.
func (q *QuotaController) ResetUsage(ctx context.Context, userID uint64) error {
	if err := q.Users.ResetUsage(ctx, userID); err != nil {
		return err
	}
	q.log.Info("usage reset", zap.Uint64("user_id", userID))
	return nil
}

// SetStatus moves an account along pending -> approved/banned and
// approved <-> banned.  Setting the current status again succeeds.
func (q *QuotaController) SetStatus(ctx context.Context, userID uint64, status string) error {
	if !model.ValidStatus(status) {
		return fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, status)
	}
	err := q.Users.UpdateStatus(ctx, userID, status, model.StatusSources(status))
	if err != nil {
		if !errors.Is(err, apperr.ErrUserNotFound) && !errors.Is(err, apperr.ErrInvalidTransition) {
			q.log.Error("status update failed", zap.Uint64("user_id", userID), zap.Error(err))
		}
		return err
	}
	q.log.Info("status updated", zap.Uint64("user_id", userID), zap.String("status", status))
	return nil
}
