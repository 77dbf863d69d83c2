package service

import (
	"context"
	"strings"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/rs/zerolog"
)

type ItemService struct {
	repo         domain.Repository
	availability *AvailabilityService
	logger       *zerolog.Logger
	now          func() time.Time
}

var _ domain.ItemService = (*ItemService)(nil)

func NewItemService(repo domain.Repository, availability *AvailabilityService, logger *zerolog.Logger) *ItemService {
	return &ItemService{
		repo:         repo,
		availability: availability,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *ItemService) CreateItem(ctx context.Context, ownerID int64, input domain.ItemInput) (*models.Item, error) {
	if err := validateItemInput(input, true); err != nil {
		return nil, err
	}

	item := &models.Item{
		Name:        *input.Name,
		Description: *input.Description,
		Available:   *input.Available,
		OwnerID:     ownerID,
		RequestID:   input.RequestID,
	}

	err := s.repo.WithinTx(ctx, func(repo domain.Repository) error {
		if _, err := repo.GetUser(ctx, ownerID); err != nil {
			return err
		}
		if item.RequestID != nil {
			if _, err := repo.GetItemRequest(ctx, *item.RequestID); err != nil {
				return err
			}
		}
		return repo.CreateItem(ctx, item)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("item_id", item.ID).Int64("owner_id", ownerID).Msg("Item created")
	return item, nil
}

// UpdateItem applies the fields present in input. Only the owner may edit an item.
func (s *ItemService) UpdateItem(ctx context.Context, ownerID, itemID int64, input domain.ItemInput) (*models.Item, error) {
	if err := validateItemInput(input, false); err != nil {
		return nil, err
	}

	var updated *models.Item
	err := s.repo.WithinTx(ctx, func(repo domain.Repository) error {
		item, err := repo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		if item.OwnerID != ownerID {
			return domain.Forbidden("User %d is not the owner of item %d", ownerID, itemID)
		}
		if input.Name != nil {
			item.Name = *input.Name
		}
		if input.Description != nil {
			item.Description = *input.Description
		}
		if input.Available != nil {
			item.Available = *input.Available
		}
		if input.RequestID != nil {
			if _, err := repo.GetItemRequest(ctx, *input.RequestID); err != nil {
				return err
			}
			item.RequestID = input.RequestID
		}
		if err := repo.UpdateItem(ctx, item); err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("item_id", itemID).Msg("Item updated")
	return updated, nil
}

// GetItem shows an item with its comments. Last/next bookings are filled in only for the owner.
func (s *ItemService) GetItem(ctx context.Context, itemID, userID int64) (*models.ItemView, error) {
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	item, err := s.repo.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	comments, err := s.repo.ListCommentsByItemIDs(ctx, []int64{itemID})
	if err != nil {
		return nil, err
	}

	view := &models.ItemView{Item: *item, Comments: comments}
	if item.OwnerID == userID {
		lastNext, err := s.availability.LastAndNext(ctx, itemID, s.now())
		if err != nil {
			return nil, err
		}
		view.LastNext = lastNext
	}
	return view, nil
}

// ListOwnerItems returns the owner's items by id with last/next bookings and comments,
// using one query per kind of data rather than one per item.
func (s *ItemService) ListOwnerItems(ctx context.Context, ownerID int64) ([]*models.ItemView, error) {
	if _, err := s.repo.GetUser(ctx, ownerID); err != nil {
		return nil, err
	}
	items, err := s.repo.ListItemsByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	itemIDs := make([]int64, 0, len(items))
	for _, item := range items {
		itemIDs = append(itemIDs, item.ID)
	}

	projection, err := s.availability.project(ctx, itemIDs, s.now())
	if err != nil {
		return nil, err
	}
	comments, err := s.repo.ListCommentsByItemIDs(ctx, itemIDs)
	if err != nil {
		return nil, err
	}
	commentsByItem := make(map[int64][]*models.Comment, len(items))
	for _, c := range comments {
		commentsByItem[c.ItemID] = append(commentsByItem[c.ItemID], c)
	}

	views := make([]*models.ItemView, 0, len(items))
	for _, item := range items {
		itemComments := commentsByItem[item.ID]
		if itemComments == nil {
			itemComments = []*models.Comment{}
		}
		views = append(views, &models.ItemView{
			Item:     *item,
			LastNext: projection[item.ID],
			Comments: itemComments,
		})
	}
	return views, nil
}

// SearchItems finds available items whose name or description contains text, ignoring case.
func (s *ItemService) SearchItems(ctx context.Context, text string, page models.Page) ([]*models.Item, error) {
	if strings.TrimSpace(text) == "" {
		return []*models.Item{}, nil
	}
	return s.repo.SearchAvailableItems(ctx, text, page)
}

// AddComment accepts feedback only from users who have finished a booking of the item.
func (s *ItemService) AddComment(ctx context.Context, authorID, itemID int64, text string) (*models.Comment, error) {
	text, err := validateText("Comment text", text, maxCommentLength)
	if err != nil {
		return nil, err
	}

	author, err := s.repo.GetUser(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}

	finished, err := s.repo.HasFinishedBooking(ctx, itemID, authorID, normalizeInstant(s.now()))
	if err != nil {
		return nil, err
	}
	if !finished {
		return nil, domain.InvalidRequest("User %d has no finished booking of item %d", authorID, itemID)
	}

	comment := &models.Comment{ItemID: itemID, AuthorID: authorID, AuthorName: author.Name, Text: text}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, err
	}

	s.logger.Info().Int64("comment_id", comment.ID).Int64("item_id", itemID).Msg("Comment added")
	return comment, nil
}
