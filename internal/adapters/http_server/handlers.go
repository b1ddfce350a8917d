package httpserver

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"vibecheck/internal/app"
	"vibecheck/internal/domain"
)

const (
	defaultLimit = 50
	maxLimit     = 200
	maxBodyBytes = 64 << 10
)

type Handlers struct {
	Q               *app.QueryService
	Reviews         *app.ReviewService
	Agg             *app.AggregationService
	Users           *app.UserService
	MinReviewLength int
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type registerUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type submitReviewRequest struct {
	UserID  int64  `json:"user_id"`
	Content string `json:"content"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
	s.mux.Route("/v1/businesses", func(r chi.Router) {
		r.Get("/", h.listBusinesses)
		r.Get("/{id}", h.getBusiness)
		r.Get("/{id}/reviews", h.listReviews)
		r.Post("/{id}/reviews", h.submitReview)
		r.Delete("/{id}/reviews/{reviewID}", h.deleteReview)
		r.Post("/{id}/recompute", h.recompute)
	})
	s.mux.Post("/v1/users", h.registerUser)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeError maps service errors onto problem responses.
func writeError(w http.ResponseWriter, r *http.Request, err error, what string) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", what+" not found")
	case errors.Is(err, domain.ErrEmptyContent):
		writeProblem(w, http.StatusBadRequest, "Invalid review", "content must not be empty")
	case errors.Is(err, domain.ErrInvalidUser):
		writeProblem(w, http.StatusBadRequest, "Invalid user", err.Error())
	case errors.Is(err, domain.ErrConflict):
		writeProblem(w, http.StatusConflict, "Conflict", err.Error())
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes v with a weak ETag, answering 304 when the client
// already has it.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Msg("failed to write body")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", name+" must be a positive number")
		return 0, false
	}
	return id, true
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	ls := r.URL.Query().Get("limit")
	if ls == "" {
		return defaultLimit, true
	}
	l, err := strconv.Atoi(ls)
	if err != nil || l <= 0 || l > maxLimit {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 200")
		return 0, false
	}
	return l, true
}

func (h *Handlers) listBusinesses(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	q := domain.BusinessesQuery{Limit: limit}
	if c := strings.TrimSpace(r.URL.Query().Get("category")); c != "" {
		q.Category = &c
	}
	out, err := h.Q.ListBusinesses(r.Context(), q)
	if err != nil {
		writeError(w, r, err, "businesses")
		return
	}
	writeCached(w, r, struct {
		Items []domain.BusinessView `json:"items"`
	}{out})
}

func (h *Handlers) getBusiness(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	resp, err := h.Q.GetBusiness(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "business")
		return
	}
	writeCached(w, r, resp)
}

func (h *Handlers) listReviews(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	// Newest first; aligns with DB index on (business_id, created_at, id)
	out, err := h.Q.ListReviews(r.Context(), id, limit)
	if err != nil {
		writeError(w, r, err, "business")
		return
	}
	writeCached(w, r, out)
}

func (h *Handlers) submitReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req submitReviewRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected JSON object with user_id and content")
		return
	}
	if req.UserID <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid review", "user_id must be a positive number")
		return
	}
	if n := utf8.RuneCountInString(strings.TrimSpace(req.Content)); n < h.MinReviewLength {
		writeProblem(w, http.StatusBadRequest, "Invalid review",
			"content must be at least "+strconv.Itoa(h.MinReviewLength)+" characters")
		return
	}

	rv, err := h.Reviews.ScoreAndRecord(r.Context(), id, req.UserID, req.Content)
	if err != nil {
		writeError(w, r, err, "business or user")
		return
	}
	body, err := json.Marshal(app.ToReviewView(rv))
	if err != nil {
		writeError(w, r, err, "review")
		return
	}
	writeJSON(w, http.StatusCreated, body)
}

func (h *Handlers) registerUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid body", "expected JSON object with username and email")
		return
	}
	u, err := h.Users.Register(r.Context(), req.Username, req.Email)
	if err != nil {
		writeError(w, r, err, "user")
		return
	}
	body, err := json.Marshal(app.ToUserView(u))
	if err != nil {
		writeError(w, r, err, "user")
		return
	}
	writeJSON(w, http.StatusCreated, body)
}

func (h *Handlers) deleteReview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	reviewID, ok := pathID(w, r, "reviewID")
	if !ok {
		return
	}
	if _, err := h.Reviews.DeleteReview(r.Context(), id, reviewID); err != nil {
		writeError(w, r, err, "review")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) recompute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rec, err := h.Agg.Reconcile(r.Context(), id)
	if err != nil {
		writeError(w, r, err, "business")
		return
	}
	body, err := json.Marshal(rec)
	if err != nil {
		writeError(w, r, err, "business")
		return
	}
	writeJSON(w, http.StatusOK, body)
}
