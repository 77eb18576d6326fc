package db

import (
	"database/sql"
	"fmt"
	"net/url"

	"freelance/internal/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func NewPostgresDB(cfg *config.PostgresConfig, log *zap.Logger) (*sql.DB, error) {
	log.Info("connecting db", zap.String("conn", redactConn(cfg.Conn)))
	db, err := sql.Open("postgres", cfg.Conn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("db.NewPostgresDB: %w", err)
	}

	return db, nil
}

// redactConn hides the password of a URL-style connection string.
func redactConn(conn string) string {
	u, err := url.Parse(conn)
	if err != nil || u.User == nil {
		return conn
	}
	return u.Redacted()
}
