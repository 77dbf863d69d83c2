package database

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"shareit/internal/domain"
	"shareit/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentStatusUpdates(t *testing.T) {
	logger := zerolog.New(zerolog.NewConsoleWriter())
	db, err := NewDB(filepath.Join(t.TempDir(), "concurrency.db"), &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	owner := createUser(t, db, "owner")
	booker := createUser(t, db, "booker")
	item := createItem(t, db, owner.ID, "Tent")
	start := time.Now().Add(time.Hour)
	booking := createBooking(t, db, item.ID, booker.ID, start, start.Add(time.Hour), models.StatusWaiting)

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(approve bool) {
			defer wg.Done()
			results <- db.WithinTx(ctx, func(repo domain.Repository) error {
				current, err := repo.GetBooking(ctx, booking.ID)
				if err != nil {
					return err
				}
				if current.Status != models.StatusWaiting {
					return ErrConcurrentModification
				}
				return repo.UpdateBookingStatusWithVersion(ctx, current.ID, current.Version,
					current.Status, models.Decision(approve))
			})
		}(i%2 == 0)
	}

	wg.Wait()
	close(results)

	successCount := 0
	for err := range results {
		if err == nil {
			successCount++
		} else {
			assert.ErrorIs(t, err, ErrConcurrentModification)
		}
	}
	assert.Equal(t, 1, successCount, "exactly one decision must win")

	details, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.True(t, details.Status.IsTerminal())
	assert.Equal(t, int64(2), details.Version)
}
