package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"freelance/internal/config"
	"freelance/internal/models"

	postgres "freelance/internal/repository/db"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository struct {
	db  *sql.DB
	cfg *config.PostgresConfig
	log *zap.Logger
}

func NewRepository(db *sql.DB, cfg *config.PostgresConfig, log *zap.Logger) (*Repository, error) {
	var err error

	if log == nil {
		log = zap.NewNop()
	}

	repo := &Repository{
		db:  db,
		cfg: cfg,
		log: log.Named("repository"),
	}

	if repo.cfg == nil {
		repo.cfg, err = config.NewPostgresConfig()
		if err != nil {
			return nil, fmt.Errorf("repository.NewRepository: could not load postgres config: %w", err)
		}
	}

	if repo.db == nil {
		repo.db, err = postgres.NewPostgresDB(repo.cfg, repo.log)
		if err != nil {
			return nil, fmt.Errorf("repository.NewRepository: could not open postgres db: %w", err)
		}
	}

	if repo.cfg.AutoMigrateUp == "true" {
		err = repo.MigrateUp()
		if err != nil {
			return nil, err
		}
	}

	return repo, nil
}

func (repo *Repository) MigrateUp() error {
	err := postgres.MigrateUp(repo.db, repo.cfg.MigrationsURL, repo.log)
	if err != nil {
		return fmt.Errorf("repository.Repository.MigrateUp: %w", err)
	}
	return nil
}

func (repo *Repository) MigrateDown() error {
	err := postgres.MigrateDown(repo.db, repo.cfg.MigrationsURL, repo.log)
	if err != nil {
		return fmt.Errorf("repository.Repository.MigrateDown: %w", err)
	}
	return nil
}

func (repo *Repository) Ping(ctx context.Context) error {
	return repo.db.PingContext(ctx)
}

func (repo *Repository) UserByUUID(ctx context.Context, UUID string) (models.User, bool, error) {
	var user models.User
	if !validUUID(UUID) {
		return user, false, nil
	}

	query := `
	SELECT
		id,
		username,
		email,
		first_name,
		last_name,
		role,
		email_notifications,
		created_at,
		updated_at
	FROM users
	WHERE id = $1
	LIMIT 1
	`
	row := repo.db.QueryRowContext(ctx, query, UUID)
	err := row.Scan(&user.Id, &user.Username, &user.Email, &user.FirstName, &user.LastName, &user.Role, &user.EmailNotifications, &user.CreatedAt, &user.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user, false, nil
	} else if err != nil {
		return user, false, fmt.Errorf("repository.Repository.UserByUUID: %w", err)
	}

	return user, true, nil
}

// AddUser stores a user record. Accounts are owned by the identity service;
// this exists for provisioning and tests.
func (repo *Repository) AddUser(ctx context.Context, user models.User) (models.User, error) {
	query := `
	INSERT INTO users (username, email, first_name, last_name, role, email_notifications)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, created_at, updated_at
	`
	row := repo.db.QueryRowContext(ctx, query, user.Username, user.Email, user.FirstName, user.LastName, user.Role, user.EmailNotifications)
	err := row.Scan(&user.Id, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return user, fmt.Errorf("repository.Repository.AddUser: %w", err)
	}
	return user, nil
}

func (repo *Repository) Close() error {
	var migErr error
	if repo.cfg.AutoMigrateDown == "true" {
		migErr = repo.MigrateDown()
	}

	err := repo.db.Close()
	return errors.Join(migErr, err)
}

//// Service

func wrapRollbackErr(tx *sql.Tx, err error) error {
	rollerr := tx.Rollback()
	if rollerr == nil {
		return err
	}
	return fmt.Errorf("failed to rollback transaction after previous error: %w, %w", rollerr, err)
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (repo *Repository) q(tx *sql.Tx) queryer {
	if tx == nil {
		return repo.db
	}
	return tx
}

// Malformed ids never match a row.
func validUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// conditions builds a WHERE clause on top of a query whose first two
// parameters are LIMIT and OFFSET.
type conditions struct {
	parts  []string
	params []any
}

func newConditions(limit, offset int) *conditions {
	c := &conditions{params: make([]any, 0, 8)}
	if limit <= 0 {
		c.params = append(c.params, nil)
	} else {
		c.params = append(c.params, limit)
	}
	c.params = append(c.params, offset)
	return c
}

// add appends a condition; every "$$" in cond refers to val.
func (c *conditions) add(cond string, val any) {
	c.params = append(c.params, val)
	c.parts = append(c.parts, strings.ReplaceAll(cond, "$$", "$"+strconv.Itoa(len(c.params))))
}

func (c *conditions) apply(query string) string {
	condStr := ""
	if len(c.parts) > 0 {
		condStr = "WHERE " + strings.Join(c.parts, " AND ")
	}
	return strings.Replace(query, "$conditions$", condStr, -1)
}

// likePattern escapes LIKE wildcards in a user supplied search term.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)
	return "%" + r.Replace(s) + "%"
}

//// Test utils

func (repo *Repository) TestGetDB() *sql.DB {
	return repo.db
}
