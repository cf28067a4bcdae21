package postgres

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq"

	"github.com/bryanwahyu/footprint/internal/infra/db/sqlstore"
)

func Connect(ctx context.Context, dsn string, maxOpen int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if maxOpen <= 0 {
		maxOpen = 25
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(30 * time.Minute)

	// test ping
	ctx2, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx2); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// Open connect lalu bungkus jadi Store
func Open(ctx context.Context, dsn string, maxOpen int) (*sqlstore.Store, error) {
	db, err := Connect(ctx, dsn, maxOpen)
	if err != nil {
		return nil, err
	}
	return sqlstore.New(db, sqlstore.Postgres), nil
}
