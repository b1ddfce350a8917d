package app

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"vibecheck/internal/domain"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
)

// UserService registers the users that reviews are attributed to.
type UserService struct {
	repo  domain.Repository
	clock clockwork.Clock
}

func NewUserService(r domain.Repository) *UserService {
	return &UserService{repo: r, clock: clockwork.NewRealClock()}
}

// Register stores a new user. Taken usernames and emails are rejected by
// the store's unique constraints with domain.ErrConflict.
func (s *UserService) Register(ctx context.Context, username, email string) (domain.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if n := utf8.RuneCountInString(username); n < minUsernameLen || n > maxUsernameLen {
		return domain.User{}, fmt.Errorf("%w: username must be %d to %d characters", domain.ErrInvalidUser, minUsernameLen, maxUsernameLen)
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return domain.User{}, fmt.Errorf("%w: email is not a valid address", domain.ErrInvalidUser)
	}

	u := domain.User{Username: username, Email: email, CreatedAt: s.clock.Now().UTC()}
	id, err := s.repo.InsertUser(ctx, u)
	if err != nil {
		return domain.User{}, err
	}
	u.ID = id
	log.Info().Int64("user_id", id).Str("username", username).Msg("user registered")
	return u, nil
}
