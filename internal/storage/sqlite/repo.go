package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"vibecheck/internal/domain"
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02 15:04:05.000000000"

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	// fractional seconds are accepted even though the layout omits them
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse created_at %q: %w", s, err)
	}
	return t, nil
}

func nullID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// uniqueViolation reports the users column of a UNIQUE constraint failure,
// whose message reads "UNIQUE constraint failed: users.email".
func uniqueViolation(err error) (string, bool) {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return "", false
	}
	if se.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE && se.Code()&0xff != sqlite3.SQLITE_CONSTRAINT {
		return "", false
	}
	msg := se.Error()
	if !strings.Contains(msg, "UNIQUE") {
		return "", false
	}
	if strings.Contains(msg, "users.email") {
		return "email", true
	}
	return "username", true
}

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
	res, err := r.q.ExecContext(ctx, `
INSERT INTO businesses (id, name, category, location, aggregated_vibe_score, total_reviews, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		nullID(b.ID), b.Name, b.Category, b.Location, b.AggregatedVibeScore, b.TotalReviews, formatTime(b.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) InsertUser(ctx context.Context, u domain.User) (int64, error) {
	res, err := r.q.ExecContext(ctx,
		`INSERT INTO users (id, username, email, created_at) VALUES (?, ?, ?, ?)`,
		nullID(u.ID), u.Username, u.Email, formatTime(u.CreatedAt))
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			return 0, fmt.Errorf("%s %w", field, domain.ErrConflict)
		}
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) InsertReview(ctx context.Context, rv domain.Review) (int64, error) {
	var sentiment, keywords sql.NullString
	var score sql.NullFloat64
	if rv.Sentiment != nil {
		sentiment = sql.NullString{String: string(*rv.Sentiment), Valid: true}
	}
	if rv.Keywords != nil {
		keywords = sql.NullString{String: *rv.Keywords, Valid: true}
	}
	if rv.VibeScore != nil {
		score = sql.NullFloat64{Float64: *rv.VibeScore, Valid: true}
	}
	res, err := r.q.ExecContext(ctx, `
INSERT INTO reviews (business_id, user_id, content, sentiment, vibe_score, keywords, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rv.BusinessID, rv.UserID, rv.Content, sentiment, score, keywords, formatTime(rv.CreatedAt))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (r *Repo) DeleteReview(ctx context.Context, id int64) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM reviews WHERE id = ?`, id)
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

func (r *Repo) UpdateBusinessAggregate(ctx context.Context, businessID int64, score float64, total int) error {
	res, err := r.q.ExecContext(ctx,
		`UPDATE businesses SET aggregated_vibe_score = ?, total_reviews = ? WHERE id = ?`,
		score, total, businessID)
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

// LockBusiness only checks existence: transactions begin IMMEDIATE and
// already hold the database write lock.
func (r *Repo) LockBusiness(ctx context.Context, id int64) error {
	var got int64
	err := r.q.QueryRowContext(ctx, `SELECT id FROM businesses WHERE id = ?`, id).Scan(&got)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	return err
}

type scanner interface{ Scan(dest ...any) error }

const businessColumns = `id, name, category, location, aggregated_vibe_score, total_reviews, created_at`

func scanBusiness(s scanner) (domain.Business, error) {
	var b domain.Business
	var created string
	if err := s.Scan(&b.ID, &b.Name, &b.Category, &b.Location, &b.AggregatedVibeScore, &b.TotalReviews, &created); err != nil {
		return domain.Business{}, err
	}
	t, err := parseTime(created)
	if err != nil {
		return domain.Business{}, err
	}
	b.CreatedAt = t
	return b, nil
}

const reviewColumns = `id, business_id, user_id, content, sentiment, vibe_score, keywords, created_at`

func scanReview(s scanner) (domain.Review, error) {
	var (
		rv        domain.Review
		sentiment sql.NullString
		score     sql.NullFloat64
		keywords  sql.NullString
		created   string
	)
	if err := s.Scan(&rv.ID, &rv.BusinessID, &rv.UserID, &rv.Content, &sentiment, &score, &keywords, &created); err != nil {
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
	t, err := parseTime(created)
	if err != nil {
		return domain.Review{}, err
	}
	rv.CreatedAt = t
	return rv, nil
}

func (r *Repo) GetBusiness(ctx context.Context, id int64) (domain.Business, error) {
	b, err := scanBusiness(r.q.QueryRowContext(ctx, `SELECT `+businessColumns+` FROM businesses WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Business{}, domain.ErrNotFound
	}
	return b, err
}

func (r *Repo) GetUser(ctx context.Context, id int64) (domain.User, error) {
	var u domain.User
	var created string
	err := r.q.QueryRowContext(ctx, `SELECT id, username, email, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Username, &u.Email, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, err
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (r *Repo) GetReview(ctx context.Context, id int64) (domain.Review, error) {
	rv, err := scanReview(r.q.QueryRowContext(ctx, `SELECT `+reviewColumns+` FROM reviews WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Review{}, domain.ErrNotFound
	}
	return rv, err
}

func (r *Repo) ListReviewsForBusiness(ctx context.Context, businessID int64) ([]domain.Review, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE business_id = ? ORDER BY created_at, id`, businessID)
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
	rows, err := r.q.QueryContext(ctx, `SELECT id FROM businesses ORDER BY id`)
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
