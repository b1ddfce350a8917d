package mysql

const insertBusinessSQL = `
INSERT INTO businesses
  (id, name, category, location, aggregated_vibe_score, total_reviews, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP(6)))
`

const insertUserSQL = `
INSERT INTO users (id, username, email, created_at)
VALUES (?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP(6)))
`

const insertReviewSQL = `
INSERT INTO reviews
  (business_id, user_id, content, sentiment, vibe_score, keywords, created_at)
VALUES
  (?, ?, ?, ?, ?, ?, COALESCE(?, CURRENT_TIMESTAMP(6)))
`

const updateAggregateSQL = `
UPDATE businesses
SET aggregated_vibe_score = ?, total_reviews = ?
WHERE id = ?
`

// Held until the surrounding transaction ends.
const lockBusinessSQL = `SELECT id FROM businesses WHERE id = ? FOR UPDATE`

const businessColumns = `id, name, category, location, aggregated_vibe_score, total_reviews, created_at`

const getBusinessSQL = `SELECT ` + businessColumns + ` FROM businesses WHERE id = ?`

const getUserSQL = `SELECT id, username, email, created_at FROM users WHERE id = ?`

const reviewColumns = `id, business_id, user_id, content, sentiment, vibe_score, keywords, created_at`

const getReviewSQL = `SELECT ` + reviewColumns + ` FROM reviews WHERE id = ?`

// Oldest first; aligns with idx_reviews_business_created.
const listReviewsSQL = `
SELECT ` + reviewColumns + `
FROM reviews
WHERE business_id = ?
ORDER BY created_at, id
`

const deleteReviewSQL = `DELETE FROM reviews WHERE id = ?`

const listBusinessIDsSQL = `SELECT id FROM businesses ORDER BY id`
