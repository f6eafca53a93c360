package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/rs/zerolog/log"
)

const (
	// GracePeriod is the minimum age before an empty room may be deleted by cleanup.
	GracePeriod = 5 * time.Minute

	// DefaultInactivityTimeout is how long a member may stay silent before cleanup drops it.
	DefaultInactivityTimeout = 5 * time.Minute

	// DefaultTTL bounds the lifetime of a stored room.
	DefaultTTL = 24 * time.Hour

	keyPrefix = "room:"
)

// Store defines what the app layer needs from room persistence.
type Store interface {
	CreateRoom(ctx context.Context, code string) (*models.Room, error)
	GetRoom(ctx context.Context, code string) (*models.Room, error)
	UpdateRoom(ctx context.Context, room *models.Room) error
	DeleteRoom(ctx context.Context, code string) error
	RoomExists(ctx context.Context, code string) (bool, error)
	ListRooms(ctx context.Context) ([]string, error)
	CleanupRoom(ctx context.Context, code string, inactivityTimeout time.Duration) (CleanupResult, error)
	CleanupInactiveMembers(ctx context.Context, inactivityTimeout time.Duration) (CleanupReport, error)
}

// CleanupResult describes what a sweep did to a single room.
type CleanupResult struct {
	Code           string
	RemovedMembers int
	Deleted        bool
}

// Changed reports whether the room's stored state was modified.
func (r CleanupResult) Changed() bool {
	return r.Deleted || r.RemovedMembers > 0
}

// CleanupReport aggregates a sweep over every stored room. Skipped lists
// rooms whose record could not be cleaned, such as undecodable ones.
type CleanupReport struct {
	Updated []string
	Deleted []string
	Skipped []string
	Removed int
}

func roomKey(code string) string {
	return keyPrefix + code
}

// pruneRoom drops members idle since before now-inactivityTimeout and
// decides whether the room itself should go. An empty room survives until
// it is older than GracePeriod so a fresh room is not deleted before anyone
// had a chance to join.
func pruneRoom(r *models.Room, now time.Time, inactivityTimeout time.Duration) CleanupResult {
	cutoff := now.Add(-inactivityTimeout)
	result := CleanupResult{Code: r.Code}

	kept := r.Members[:0]
	for _, m := range r.Members {
		if m.LastActivity.Before(cutoff) {
			result.RemovedMembers++
			continue
		}
		kept = append(kept, m)
	}
	r.Members = kept

	if len(r.Members) == 0 && now.Sub(r.CreatedAt) > GracePeriod {
		result.Deleted = true
	}
	return result
}

// cleanupAll runs clean over every listed room. A room that vanished
// between listing and cleanup is ignored and a room that fails on its own
// is skipped, so one bad record never blocks the rest. The sweep aborts
// only when the backend is down or ctx is done.
func cleanupAll(ctx context.Context, s Store, clean func(ctx context.Context, code string) (CleanupResult, error)) (CleanupReport, error) {
	var report CleanupReport

	codes, err := s.ListRooms(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list rooms: %w", err)
	}

	for _, code := range codes {
		result, err := clean(ctx, code)
		switch {
		case err == nil:
		case errors.Is(err, ErrRoomNotFound):
			continue
		case errors.Is(err, ErrStoreUnavailable), ctx.Err() != nil:
			return report, fmt.Errorf("failed to clean up room %s: %w", code, err)
		default:
			log.Warn().Err(err).Str("room", code).Msg("skipping room during cleanup")
			report.Skipped = append(report.Skipped, code)
			continue
		}
		report.Removed += result.RemovedMembers
		switch {
		case result.Deleted:
			report.Deleted = append(report.Deleted, code)
		case result.RemovedMembers > 0:
			report.Updated = append(report.Updated, code)
		}
	}
	return report, nil
}
