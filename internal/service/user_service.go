package service

import (
	"context"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/rs/zerolog"
)

type UserService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

var _ domain.UserService = (*UserService)(nil)

func NewUserService(repo domain.Repository, logger *zerolog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		logger: logger,
	}
}

func (s *UserService) CreateUser(ctx context.Context, input domain.UserInput) (*models.User, error) {
	if err := validateUserInput(input, true); err != nil {
		return nil, err
	}

	user := &models.User{Name: *input.Name, Email: *input.Email}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", user.ID).Msg("User created")
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetUser(ctx, id)
}

// UpdateUser applies only the fields present in input.
func (s *UserService) UpdateUser(ctx context.Context, id int64, input domain.UserInput) (*models.User, error) {
	if err := validateUserInput(input, false); err != nil {
		return nil, err
	}

	var updated *models.User
	err := s.repo.WithinTx(ctx, func(repo domain.Repository) error {
		user, err := repo.GetUser(ctx, id)
		if err != nil {
			return err
		}
		if input.Name != nil {
			user.Name = *input.Name
		}
		if input.Email != nil {
			user.Email = *input.Email
		}
		if err := repo.UpdateUser(ctx, user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("user_id", id).Msg("User updated")
	return updated, nil
}

func (s *UserService) DeleteUser(ctx context.Context, id int64) error {
	if err := s.repo.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Int64("user_id", id).Msg("User deleted")
	return nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]*models.User, error) {
	return s.repo.ListUsers(ctx)
}
