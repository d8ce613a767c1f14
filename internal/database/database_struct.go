package database

import (
	"errors"

	"gorm.io/gorm"
)

// ErrNotFound is returned by lookups that match no row.
var ErrNotFound = gorm.ErrRecordNotFound

type Database struct {
	db         *gorm.DB
	maxRetries int
	inTx       bool
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// WithRetries sets how many times a unit of work is re-run after a
// serialization failure or deadlock.
func (d *Database) WithRetries(n int) *Database {
	d.maxRetries = n
	return d
}

func (d *Database) Gorm() *gorm.DB {
	return d.db
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
