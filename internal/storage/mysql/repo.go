// Package mysql is the MySQL implementation of domain.Repository.
package mysql

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"

	"vibecheck/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// erDupEntry is MySQL's ER_DUP_ENTRY.
const erDupEntry = 1062

// duplicateKey reports the users column behind a duplicate-key error,
// named after the uq_users_* keys in schema.sql.
func duplicateKey(err error) (string, bool) {
	var me *mysqldrv.MySQLError
	if !errors.As(err, &me) || me.Number != erDupEntry {
		return "", false
	}
	if strings.Contains(me.Message, "uq_users_email") {
		return "email", true
	}
	return "username", true
}

func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}
func valF64(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}
func valID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}
func valTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Repo struct {
	db *sql.DB
	q  querier
	tx *sql.Tx
}

var _ domain.Repository = (*Repo)(nil)

func New(db *sql.DB) *Repo { return &Repo{db: db, q: db} }

// ApplySchema creates missing tables. Statements are run one at a time so
// the DSN does not need multiStatements.
func ApplySchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (r *Repo) WithTx(ctx context.Context, fn func(domain.Repository) error) error {
	if r.tx != nil {
		return fn(r)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(&Repo{db: r.db, q: tx, tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repo) InsertBusiness(ctx context.Context, b domain.Business) (int64, error) {
	res, err := r.q.ExecContext(ctx, insertBusinessSQL,
		valID(b.ID),
		b.Name,
		b.Category,
		b.Location,
		b.AggregatedVibeScore,
		b.TotalReviews,
		valTime(b.CreatedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) InsertUser(ctx context.Context, u domain.User) (int64, error) {
	res, err := r.q.ExecContext(ctx, insertUserSQL, valID(u.ID), u.Username, u.Email, valTime(u.CreatedAt))
	if err != nil {
		if field, ok := duplicateKey(err); ok {
			return 0, fmt.Errorf("%s %w", field, domain.ErrConflict)
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) InsertReview(ctx context.Context, rv domain.Review) (int64, error) {
	var sentiment *string
	if rv.Sentiment != nil {
		s := string(*rv.Sentiment)
		sentiment = &s
	}
	res, err := r.q.ExecContext(ctx, insertReviewSQL,
		rv.BusinessID,
		rv.UserID,
		rv.Content,
		valStr(sentiment),
		valF64(rv.VibeScore),
		valStr(rv.Keywords),
		valTime(rv.CreatedAt),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) DeleteReview(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, deleteReviewSQL, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// UpdateBusinessAggregate does not report missing rows: MySQL counts
// unchanged rows as unaffected. Callers lock the business first.
func (r *Repo) UpdateBusinessAggregate(ctx context.Context, businessID int64, score float64, total int) error {
	_, err := r.q.ExecContext(ctx, updateAggregateSQL, score, total, businessID)
	return err
}

func (r *Repo) LockBusiness(ctx context.Context, id int64) error {
	var got int64
	err := r.q.QueryRowContext(ctx, lockBusinessSQL, id).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

type scanner interface{ Scan(dest ...any) error }

func scanBusiness(s scanner) (domain.Business, error) {
	var b domain.Business
	err := s.Scan(&b.ID, &b.Name, &b.Category, &b.Location, &b.AggregatedVibeScore, &b.TotalReviews, &b.CreatedAt)
	return b, err
}

func scanReview(s scanner) (domain.Review, error) {
	var (
		rv        domain.Review
		sentiment sql.NullString
		score     sql.NullFloat64
		keywords  sql.NullString
	)
	if err := s.Scan(&rv.ID, &rv.BusinessID, &rv.UserID, &rv.Content, &sentiment, &score, &keywords, &rv.CreatedAt); err != nil {
		return domain.Review{}, err
	}
	if sentiment.Valid {
		v := domain.Sentiment(sentiment.String)
		rv.Sentiment = &v
	}
	if score.Valid {
		f := score.Float64
		rv.VibeScore = &f
	}
	if keywords.Valid {
		k := keywords.String
		rv.Keywords = &k
	}
	return rv, nil
}

func (r *Repo) GetBusiness(ctx context.Context, id int64) (domain.Business, error) {
	b, err := scanBusiness(r.q.QueryRowContext(ctx, getBusinessSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Business{}, domain.ErrNotFound
	}
	return b, err
}

func (r *Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	err := r.q.QueryRowContext(ctx, getUserSQL, id).Scan(&u.ID, &u.Username, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return u, err
}

func (r *Repo) GetReview(ctx context.Context, id int64) (domain.Review, error) {
	rv, err := scanReview(r.q.QueryRowContext(ctx, getReviewSQL, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Review{}, domain.ErrNotFound
	}
	return rv, err
}

func (r *Repo) ListReviewsForBusiness(ctx context.Context, businessID int64) ([]domain.Review, error) {
	rows, err := r.q.QueryContext(ctx, listReviewsSQL, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Review
	for rows.Next() {
		rv, err := scanReview(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

func (r *Repo) ListBusinesses(ctx context.Context, q domain.BusinessesQuery) ([]domain.Business, error) {
	query := `SELECT ` + businessColumns + ` FROM businesses`
	var args []any
	if q.Category != nil {
		query += ` WHERE category = ?`
		args = append(args, *q.Category)
	}
	query += ` ORDER BY id`
	if q.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, q.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Business
	for rows.Next() {
		b, err := scanBusiness(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repo) ListBusinessIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.q.QueryContext(ctx, listBusinessIDsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
