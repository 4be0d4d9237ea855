package postgresql

import (
	"database/sql"
	"log"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/livecart/lc-checkout/config"
)

var (
	once sync.Once
	db   *sql.DB
)

// GetDatabase returns the shared postgres connection pool.
func GetDatabase() *sql.DB {
	once.Do(func() {
		c := config.Get()

		var err error
		db, err = sql.Open("pgx", c.Postgres.DSN)
		if err != nil {
			log.Fatalf("open postgres: %v", err)
		}

		db.SetMaxOpenConns(c.Postgres.MaxOpenConns)
		db.SetMaxIdleConns(c.Postgres.MaxIdleConns)
		db.SetConnMaxLifetime(c.Postgres.ConnMaxLifetime)
	})

	return db
}
