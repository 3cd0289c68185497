package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coupondeck/entitlement-ledger/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type InsertEntitlementParams struct {
	ID         string
	UserID     string
	OrderKey   string
	AmountPaid int64
	Granted    int
	IssuedAt   time.Time
}

// Querier is the slice of the store usable inside ExecTx. RedeemOldest and
// InsertEntitlement are only safe against concurrent writers when the
// relevant key lock is held, which is why they live here rather than on
// Store alone.
type Querier interface {
	// AcquireKeyLock takes a transaction-scoped lock on an arbitrary key.
	// The lock is released when the surrounding transaction ends. Two
	// transactions locking the same key serialize; different keys do not.
	AcquireKeyLock(ctx context.Context, key string) error
	ExistsByOrderKey(ctx context.Context, orderKey string) (bool, error)
	ExistsByUserBetween(ctx context.Context, userID string, from, to time.Time) (bool, error)
	InsertEntitlement(ctx context.Context, arg InsertEntitlementParams) (domain.Entitlement, error)
	// RedeemOldest decrements the oldest record for userID that still has
	// entitlements left and returns it post-decrement. Returns pgx.ErrNoRows
	// when the user has no eligible record.
	RedeemOldest(ctx context.Context, userID string) (domain.Entitlement, error)
}

type Store interface {
	Querier
	ExecTx(ctx context.Context, fn func(Querier) error) error
	SumBalance(ctx context.Context, userID string) (int64, error)
	ZeroOut(ctx context.Context, userID string) (int64, error)
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type store struct {
	pool *pgxpool.Pool
	queries
}

func New(pool *pgxpool.Pool) Store {
	return &store{
		pool:    pool,
		queries: queries{db: pool},
	}
}

func (s *store) ExecTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	q := queries{db: tx}
	if err := fn(q); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("tx err: %v, rollback err: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *store) SumBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(entitlements_granted), 0)::bigint
		 FROM entitlements
		 WHERE user_id = $1`,
		userID,
	).Scan(&balance)
	if err != nil {
		return 0, fmt.Errorf("sum balance: %w", err)
	}
	return balance, nil
}

func (s *store) ZeroOut(ctx context.Context, userID string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE entitlements
		 SET entitlements_granted = 0
		 WHERE user_id = $1 AND entitlements_granted > 0`,
		userID,
	)
	if err != nil {
		return 0, fmt.Errorf("zero out: %w", err)
	}
	return tag.RowsAffected(), nil
}

type queries struct {
	db dbtx
}

func (q queries) AcquireKeyLock(ctx context.Context, key string) error {
	_, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key)
	if err != nil {
		return fmt.Errorf("acquire key lock: %w", err)
	}
	return nil
}

func (q queries) ExistsByOrderKey(ctx context.Context, orderKey string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM entitlements WHERE order_key = $1)`,
		orderKey,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists by order key: %w", err)
	}
	return exists, nil
}

func (q queries) ExistsByUserBetween(ctx context.Context, userID string, from, to time.Time) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM entitlements
			WHERE user_id = $1 AND issued_at >= $2 AND issued_at < $3
		)`,
		userID, from, to,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists by user between: %w", err)
	}
	return exists, nil
}

func (q queries) InsertEntitlement(ctx context.Context, arg InsertEntitlementParams) (domain.Entitlement, error) {
	var rec domain.Entitlement
	err := q.db.QueryRow(ctx,
		`INSERT INTO entitlements (id, user_id, order_key, amount_paid, entitlements_granted, issued_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, user_id, order_key, amount_paid, entitlements_granted, issued_at`,
		arg.ID, arg.UserID, arg.OrderKey, arg.AmountPaid, arg.Granted, arg.IssuedAt,
	).Scan(&rec.ID, &rec.UserID, &rec.OrderKey, &rec.AmountPaid, &rec.Granted, &rec.IssuedAt)
	if err != nil {
		return domain.Entitlement{}, fmt.Errorf("insert entitlement: %w", err)
	}
	return rec, nil
}

// redeemOldestSQL repeats the entitlements_granted > 0 guard on the outer
// UPDATE: under READ COMMITTED the subquery is planned once, so when a
// concurrent writer (e.g. a reset) zeroes the chosen row, only the outer
// WHERE is rechecked against the new row version. Without the guard the
// recheck would decrement a zeroed record into the CHECK constraint; with it
// the statement matches nothing and the caller sees pgx.ErrNoRows.
const redeemOldestSQL = `UPDATE entitlements
		 SET entitlements_granted = entitlements_granted - 1
		 WHERE entitlements_granted > 0 AND id = (
			SELECT id FROM entitlements
			WHERE user_id = $1 AND entitlements_granted > 0
			ORDER BY issued_at, id
			LIMIT 1
		 )
		 RETURNING id, user_id, order_key, amount_paid, entitlements_granted, issued_at`

func (q queries) RedeemOldest(ctx context.Context, userID string) (domain.Entitlement, error) {
	var rec domain.Entitlement
	err := q.db.QueryRow(ctx, redeemOldestSQL, userID).
		Scan(&rec.ID, &rec.UserID, &rec.OrderKey, &rec.AmountPaid, &rec.Granted, &rec.IssuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entitlement{}, pgx.ErrNoRows
		}
		return domain.Entitlement{}, fmt.Errorf("redeem oldest: %w", err)
	}
	return rec, nil
}
