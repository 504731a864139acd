package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/config"
)

var (
	ErrRecordNotFound = errors.New("记录不存在")
	ErrDuplicateEmail = errors.New("邮箱已存在")
	ErrEditConflict   = errors.New("记录已被修改")
)

type Repository struct {
	cfg    config.DatabaseConfig
	dbpool *sql.DB
}

func NewRepository(cfg config.DatabaseConfig, dbpool *sql.DB) *Repository {
	return &Repository{
		cfg:    cfg,
		dbpool: dbpool,
	}
}

func (r *Repository) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(r.cfg.QueryTimeout)*time.Second)
}

// withTx 在事务中执行 fn，fn 返回错误时回滚
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(r.cfg.TransactionTimeout)*time.Second)
	defer cancel()

	tx, err := r.dbpool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}
