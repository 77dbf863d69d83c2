// Package seed loads fixture users and items from a YAML file into the store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

type File struct {
	Users []User `yaml:"users"`
	Items []Item `yaml:"items"`
}

type User struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

type Item struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Available   bool   `yaml:"available"`
	OwnerEmail  string `yaml:"owner_email"`
}

// Store is the part of the repository the loader writes through.
type Store interface {
	domain.UserRepository
	domain.ItemRepository
}

type Result struct {
	UsersCreated int
	ItemsCreated int
	Skipped      int
}

func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return &f, nil
}

// Apply creates missing users and items. Users are matched by email and items by
// owner and name, so running it twice changes nothing.
func Apply(ctx context.Context, store Store, f *File, logger *zerolog.Logger) (Result, error) {
	var res Result

	owners := make(map[string]*models.User, len(f.Users))
	for _, u := range f.Users {
		email := strings.TrimSpace(u.Email)
		if email == "" {
			res.Skipped++
			continue
		}
		existing, err := store.GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			owners[email] = existing
			continue
		case !errors.Is(err, domain.ErrNotFound):
			return res, fmt.Errorf("lookup user %s: %w", email, err)
		}

		user := &models.User{Name: strings.TrimSpace(u.Name), Email: email}
		if err := store.CreateUser(ctx, user); err != nil {
			return res, fmt.Errorf("create user %s: %w", email, err)
		}
		owners[email] = user
		res.UsersCreated++
	}

	known := make(map[int64]map[string]bool)
	for _, it := range f.Items {
		name := strings.TrimSpace(it.Name)
		owner, ok := owners[strings.TrimSpace(it.OwnerEmail)]
		if name == "" || !ok {
			logger.Warn().Str("item", it.Name).Str("owner_email", it.OwnerEmail).Msg("seed item skipped")
			res.Skipped++
			continue
		}

		names, ok := known[owner.ID]
		if !ok {
			items, err := store.ListItemsByOwner(ctx, owner.ID)
			if err != nil {
				return res, fmt.Errorf("list items of %s: %w", owner.Email, err)
			}
			names = make(map[string]bool, len(items))
			for _, existing := range items {
				names[existing.Name] = true
			}
			known[owner.ID] = names
		}
		if names[name] {
			continue
		}

		item := &models.Item{
			Name:        name,
			Description: strings.TrimSpace(it.Description),
			Available:   it.Available,
			OwnerID:     owner.ID,
		}
		if err := store.CreateItem(ctx, item); err != nil {
			return res, fmt.Errorf("create item %s: %w", name, err)
		}
		names[name] = true
		res.ItemsCreated++
	}

	logger.Info().
		Int("users_created", res.UsersCreated).
		Int("items_created", res.ItemsCreated).
		Int("skipped", res.Skipped).
		Msg("seed applied")
	return res, nil
}
