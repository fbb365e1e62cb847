// Package repository 基于 gorm 的持久化访问
//
// 仓储持有的 *gorm.DB 可以是事务句柄，重算流程在事务内用 tx 构造仓储，
// 保证同一事务内的读取都是最新的。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/AbuAli85/business-services-hub-sub014/internal/apperror"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// forUpdate 在 PostgreSQL 上加行锁，SQLite 整库串行写入不需要
func forUpdate(db *gorm.DB) *gorm.DB {
	if db.Dialector != nil && db.Dialector.Name() == "postgres" {
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

// notFound 把 gorm.ErrRecordNotFound 转为 NotFoundError
func notFound(err error, entity, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("find", entity, id)
	}
	return err
}

// PostgreSQL 的 serialization_failure 与 deadlock_detected
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// TranslateLockError 事务因锁竞争被数据库中止时转为 ConflictError，其余错误原样返回
func TranslateLockError(err error, op, entity, id string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected) {
		return apperror.Conflict(op, entity, id).WithCause(err)
	}
	return err
}

// updateProgress 按版本号写入缓存进度，版本不匹配返回 ConflictError
func updateProgress(ctx context.Context, db *gorm.DB, table interface{}, column, entity, id string, expectedVersion int64, pct int, at time.Time) (int64, error) {
	res := db.WithContext(ctx).Model(table).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]interface{}{
			column:       pct,
			"version":    gorm.Expr("version + 1"),
			"updated_at": at,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, apperror.Conflict("recompute", entity, id)
	}
	return expectedVersion + 1, nil
}
