// Package seed loads the bundled sample businesses and demo users.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"vibecheck/internal/domain"
)

//go:embed businesses.yaml
var defaultData []byte

// ErrAlreadySeeded is returned when the store already holds businesses and
// force was not requested.
var ErrAlreadySeeded = errors.New("seed: database already contains businesses")

type Data struct {
	Businesses []BusinessData `yaml:"businesses"`
	Users      []UserData     `yaml:"users"`
}

type BusinessData struct {
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Location string `yaml:"location"`
}

type UserData struct {
	Username string `yaml:"username"`
	Email    string `yaml:"email"`
}

type Result struct {
	Existing   int
	Businesses int
	Users      int
}

func Default() (Data, error) { return Parse(defaultData) }

func Parse(b []byte) (Data, error) {
	var d Data
	if err := yaml.Unmarshal(b, &d); err != nil {
		return Data{}, fmt.Errorf("parse seed data: %w", err)
	}
	for i, bd := range d.Businesses {
		if bd.Name == "" {
			return Data{}, fmt.Errorf("seed business %d: name is required", i)
		}
	}
	for i, ud := range d.Users {
		if ud.Username == "" || ud.Email == "" {
			return Data{}, fmt.Errorf("seed user %d: username and email are required", i)
		}
	}
	return d, nil
}

// Seed inserts d in one transaction. On a store that already has
// businesses it refuses unless force is set. Businesses are always added;
// users whose username or email is taken are skipped.
func Seed(ctx context.Context, repo domain.Repository, d Data, force bool) (Result, error) {
	ids, err := repo.ListBusinessIDs(ctx)
	if err != nil {
		return Result{}, err
	}
	res := Result{Existing: len(ids)}
	if res.Existing > 0 && !force {
		return res, fmt.Errorf("%w (%d)", ErrAlreadySeeded, res.Existing)
	}

	err = repo.WithTx(ctx, func(tx domain.Repository) error {
		for _, bd := range d.Businesses {
			if _, err := tx.InsertBusiness(ctx, domain.Business{Name: bd.Name, Category: bd.Category, Location: bd.Location}); err != nil {
				return fmt.Errorf("insert business %q: %w", bd.Name, err)
			}
			res.Businesses++
		}
		for _, ud := range d.Users {
			_, err := tx.InsertUser(ctx, domain.User{Username: ud.Username, Email: ud.Email})
			if errors.Is(err, domain.ErrConflict) {
				continue
			}
			if err != nil {
				return fmt.Errorf("insert user %q: %w", ud.Username, err)
			}
			res.Users++
		}
		return nil
	})
	if err != nil {
		return Result{Existing: res.Existing}, err
	}
	log.Info().Int("businesses", res.Businesses).Int("users", res.Users).Msg("seed complete")
	return res, nil
}
