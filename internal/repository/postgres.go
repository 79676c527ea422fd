package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"careerhub/pkg/outbox"
)

// NewPostgresStore 基于 pgx 连接池构建全部仓储
func NewPostgresStore(db *pgxpool.Pool, logger *zap.Logger) *Store {
	outboxRepo := outbox.NewRepository(db)
	return &Store{
		Users:         NewUserRepository(db, logger),
		Accounts:      NewConnectAccountRepository(db, logger),
		Resellers:     NewResellerRepository(db, logger),
		Settings:      NewSettingsRepository(db, logger),
		Jobs:          NewJobRepository(db, logger),
		Proposals:     NewProposalRepository(db, outboxRepo, logger),
		Contracts:     NewContractRepository(db, outboxRepo, logger),
		Payments:      NewPaymentRepository(db, logger),
		Notifications: NewNotificationRepository(db, logger),
		Outbox:        outboxRepo,
		Ping:          db.Ping,
	}
}

// withTx 执行 fn，出错回滚，否则提交
func withTx(ctx context.Context, db *pgxpool.Pool, fn func(tx pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// notFound 将 pgx.ErrNoRows 转为 ErrNotFound
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// expectOne 条件更新必须命中一行
func expectOne(tag pgconn.CommandTag) error {
	if tag.RowsAffected() == 0 {
		return ErrStale
	}
	return nil
}
