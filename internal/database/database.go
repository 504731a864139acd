package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/config"
	"github.com/sysu-ecnc-dev/account-bridge/backend/internal/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open 创建连接池并确认数据库可用，AutoMigrate 开启时顺便执行迁移
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	dbpool, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}

	dbpool.SetMaxOpenConns(cfg.MaxOpenConns)
	dbpool.SetMaxIdleConns(cfg.MaxIdleConns)
	dbpool.SetConnMaxIdleTime(time.Duration(cfg.MaxIdleTime) * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.ConnectTimeout)*time.Second)
	defer cancel()

	// sql.Open 只是创建数据库连接池对象，并不会立即连接到数据库，因此需要显式地 ping 一下
	if err := dbpool.PingContext(ctx); err != nil {
		dbpool.Close()
		return nil, err
	}

	if cfg.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.TransactionTimeout)*time.Second)
		defer cancel()

		if err := migrations.Up(ctx, dbpool); err != nil {
			dbpool.Close()
			return nil, err
		}
	}

	return dbpool, nil
}
