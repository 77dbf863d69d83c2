package service

import (
	"context"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/rs/zerolog"
)

const maxRequestDescriptionLength = 1000

type RequestService struct {
	repo   domain.Repository
	logger *zerolog.Logger
}

var _ domain.RequestService = (*RequestService)(nil)

func NewRequestService(repo domain.Repository, logger *zerolog.Logger) *RequestService {
	return &RequestService{
		repo:   repo,
		logger: logger,
	}
}

func (s *RequestService) CreateRequest(ctx context.Context, requestorID int64, description string) (*models.ItemRequest, error) {
	description, err := validateText("Description", description, maxRequestDescriptionLength)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetUser(ctx, requestorID); err != nil {
		return nil, err
	}

	req := &models.ItemRequest{Description: description, RequestorID: requestorID}
	if err := s.repo.CreateItemRequest(ctx, req); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("request_id", req.ID).Int64("requestor_id", requestorID).Msg("Item request created")
	return req, nil
}

// ListOwnRequests returns the user's requests, newest first, each with the items offered in answer.
func (s *RequestService) ListOwnRequests(ctx context.Context, requestorID int64) ([]*models.ItemRequest, error) {
	if _, err := s.repo.GetUser(ctx, requestorID); err != nil {
		return nil, err
	}
	requests, err := s.repo.ListItemRequestsByRequestor(ctx, requestorID)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, requests); err != nil {
		return nil, err
	}
	return requests, nil
}

// ListOtherRequests pages through requests made by everybody except userID.
func (s *RequestService) ListOtherRequests(ctx context.Context, userID int64, page models.Page) ([]*models.ItemRequest, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	requests, err := s.repo.ListItemRequestsExcluding(ctx, userID, page.Normalize())
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, requests); err != nil {
		return nil, err
	}
	return requests, nil
}

func (s *RequestService) GetRequest(ctx context.Context, userID, requestID int64) (*models.ItemRequest, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	req, err := s.repo.GetItemRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, []*models.ItemRequest{req}); err != nil {
		return nil, err
	}
	return req, nil
}

func (s *RequestService) attachItems(ctx context.Context, requests []*models.ItemRequest) error {
	if len(requests) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(requests))
	byID := make(map[int64]*models.ItemRequest, len(requests))
	for _, r := range requests {
		ids = append(ids, r.ID)
		byID[r.ID] = r
		r.Items = []*models.Item{}
	}

	items, err := s.repo.ListItemsByRequestIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, item := range items {
		if item.RequestID == nil {
			continue
		}
		if r, ok := byID[*item.RequestID]; ok {
			r.Items = append(r.Items, item)
		}
	}
	return nil
}
