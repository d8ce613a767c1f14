package database

import (
	"context"
	"errors"
	"log"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/thereayou/taskrooms/internal/metrics"
	"gorm.io/gorm"
)

// Transaction runs fn as one unit of work. fn receives a Database bound to the
// transaction; every read and write it issues through that handle commits
// together when fn returns nil and is rolled back otherwise. The rollback
// completes before the error is returned.
//
// Calling Transaction on a handle that is already inside a unit of work joins
// it instead of opening a nested one.
func (d *Database) Transaction(ctx context.Context, fn func(tx *Database) error) error {
	if d.inTx {
		return fn(d)
	}

	var err error
	for attempt := 0; ; attempt++ {
		err = d.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
			return fn(&Database{db: gtx, maxRetries: d.maxRetries, inTx: true})
		})
		if err == nil {
			metrics.TransactionCommitted()
			return nil
		}
		if attempt >= d.maxRetries || !isRetryable(err) || ctx.Err() != nil {
			break
		}
		metrics.TransactionRetried()
		log.Printf("transaction conflict, retrying (attempt %d): %v", attempt+1, err)
	}

	metrics.TransactionAborted()
	return err
}

// isRetryable reports serialization failures and deadlocks, the only errors
// for which re-running the whole unit can succeed.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
