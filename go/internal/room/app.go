package room

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/validation"
	"github.com/rs/zerolog/log"
)

const maxCodeAttempts = 10

// Publisher receives the full snapshot after every successful mutation.
type Publisher interface {
	Publish(ctx context.Context, state models.SessionState)
}

// App owns the mutation path for rooms. Read-modify-write cycles are
// serialized per room within the process so that every mutation produces
// exactly one snapshot and snapshots are published in mutation order.
// Across processes the store's last write wins.
type App struct {
	store       Store
	clock       clockwork.Clock
	publishers  []Publisher
	locks       *roomLocks
	defaultRoom string
}

// NewApp creates a new room App.
func NewApp(store Store, clock clockwork.Clock, defaultRoom string, publishers ...Publisher) *App {
	return &App{
		store:       store,
		clock:       clock,
		publishers:  publishers,
		locks:       newRoomLocks(),
		defaultRoom: defaultRoom,
	}
}

// DefaultRoom is the code used when a request names no room.
func (a *App) DefaultRoom() string {
	return a.defaultRoom
}

// CreateRoom creates a room under a freshly generated, unused code.
func (a *App) CreateRoom(ctx context.Context) (models.SessionState, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := validation.GenerateRoomCode()
		if err != nil {
			return models.SessionState{}, fmt.Errorf("failed to generate room code: %w", err)
		}

		exists, err := a.store.RoomExists(ctx, code)
		if err != nil {
			return models.SessionState{}, fmt.Errorf("failed to check room code: %w", err)
		}
		if exists {
			continue
		}

		room, err := a.store.CreateRoom(ctx, code)
		if err != nil {
			return models.SessionState{}, fmt.Errorf("failed to create room: %w", err)
		}
		log.Info().Str("room", code).Msg("room created")
		return Snapshot(room), nil
	}
	return models.SessionState{}, errors.New("failed to find an unused room code")
}

// State returns the current snapshot. An absent default room reads as an
// empty session; other absent rooms are ErrRoomNotFound.
func (a *App) State(ctx context.Context, code string) (models.SessionState, error) {
	if err := checkRoomCode(code); err != nil {
		return models.SessionState{}, err
	}

	room, err := a.store.GetRoom(ctx, code)
	if errors.Is(err, ErrRoomNotFound) && code == a.defaultRoom {
		return emptySnapshot(code), nil
	}
	if err != nil {
		return models.SessionState{}, fmt.Errorf("failed to get room: %w", err)
	}
	return Snapshot(room), nil
}

// Vote records userID's estimate. A repeated vote overwrites the previous
// value in place; a first vote appends the member, already revealed when
// results are showing.
func (a *App) Vote(ctx context.Context, code, userID, userName string, value models.Value) (models.SessionState, error) {
	if err := validation.ValidateParticipant(userID, userName); err != nil {
		return models.SessionState{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if err := validation.ValidateVote(value); err != nil {
		return models.SessionState{}, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	return a.mutate(ctx, code, true, func(room *models.Room) error {
		now := a.clock.Now()
		if m := room.Member(userID); m != nil {
			m.Name = userName
			m.Vote = value
			m.LastActivity = now
			return nil
		}
		room.Members = append(room.Members, models.Member{
			ID:           userID,
			Name:         userName,
			Vote:         value,
			Revealed:     room.ShowResults,
			LastActivity: now,
		})
		return nil
	})
}

// InitVotes registers participants without touching votes that already
// exist. The whole batch is rejected if any entry is invalid.
func (a *App) InitVotes(ctx context.Context, code string, votes []models.Vote) (models.SessionState, error) {
	for _, v := range votes {
		if err := validation.ValidateParticipant(v.UserID, v.UserName); err != nil {
			return models.SessionState{}, fmt.Errorf("%w: %s: %w", ErrValidation, v.UserID, err)
		}
		if err := validation.ValidateVote(v.Value); err != nil {
			return models.SessionState{}, fmt.Errorf("%w: %s: %w", ErrValidation, v.UserID, err)
		}
	}

	return a.mutate(ctx, code, true, func(room *models.Room) error {
		now := a.clock.Now()
		for _, v := range votes {
			if room.Member(v.UserID) != nil {
				continue
			}
			room.Members = append(room.Members, models.Member{
				ID:           v.UserID,
				Name:         v.UserName,
				Vote:         v.Value,
				Revealed:     room.ShowResults,
				LastActivity: now,
			})
		}
		return nil
	})
}

// Reveal shows every member's vote, cast or not.
func (a *App) Reveal(ctx context.Context, code string) (models.SessionState, error) {
	state, err := a.mutate(ctx, code, false, func(room *models.Room) error {
		room.ShowResults = true
		for i := range room.Members {
			room.Members[i].Revealed = true
		}
		return nil
	})
	if err != nil {
		return state, err
	}

	evt := log.Info().Str("room", code).Int("votes", state.Stats.Count)
	if state.Stats.Average != nil {
		evt = evt.Float64("average", *state.Stats.Average)
	}
	evt.Bool("consensus", state.Stats.Consensus).Msg("votes revealed")
	return state, nil
}

// Reset hides results and clears every vote, keeping participants and their order.
func (a *App) Reset(ctx context.Context, code string) (models.SessionState, error) {
	return a.mutate(ctx, code, false, func(room *models.Room) error {
		room.ShowResults = false
		for i := range room.Members {
			room.Members[i].Vote = models.NullValue()
			room.Members[i].Revealed = false
		}
		return nil
	})
}

// Leave removes a participant from the room.
func (a *App) Leave(ctx context.Context, code, userID string) (models.SessionState, error) {
	if userID == "" {
		return models.SessionState{}, fmt.Errorf("%w: %w", ErrValidation, validation.ErrMissingUserID)
	}
	return a.mutate(ctx, code, false, func(room *models.Room) error {
		room.RemoveMember(userID)
		return nil
	})
}

// Touch marks a member as active without publishing a snapshot. Unknown
// members are ignored.
func (a *App) Touch(ctx context.Context, code, userID string) error {
	if userID == "" {
		return nil
	}
	if err := checkRoomCode(code); err != nil {
		return err
	}

	unlock := a.locks.lock(code)
	defer unlock()

	room, err := a.store.GetRoom(ctx, code)
	if err != nil {
		return fmt.Errorf("failed to get room: %w", err)
	}
	m := room.Member(userID)
	if m == nil {
		return nil
	}
	m.LastActivity = a.clock.Now()
	if err := a.store.UpdateRoom(ctx, room); err != nil {
		return fmt.Errorf("failed to update room: %w", err)
	}
	return nil
}

// Sweep drops inactive members from every room and deletes rooms left
// empty past the grace period, publishing the resulting state of each
// room it changed.
func (a *App) Sweep(ctx context.Context, inactivityTimeout time.Duration) (CleanupReport, error) {
	return cleanupAll(ctx, a.store, func(ctx context.Context, code string) (CleanupResult, error) {
		return a.sweepRoom(ctx, code, inactivityTimeout)
	})
}

func (a *App) sweepRoom(ctx context.Context, code string, inactivityTimeout time.Duration) (CleanupResult, error) {
	unlock := a.locks.lock(code)
	defer unlock()

	result, err := a.store.CleanupRoom(ctx, code, inactivityTimeout)
	if err != nil {
		return result, err
	}

	switch {
	case result.Deleted:
		a.publish(ctx, emptySnapshot(code))
	case result.RemovedMembers > 0:
		room, err := a.store.GetRoom(ctx, code)
		if err != nil {
			return result, err
		}
		a.publish(ctx, Snapshot(room))
	}
	return result, nil
}

// mutate runs fn against the room under its lock, persists the result and
// publishes one snapshot. Missing rooms are created when create is set;
// the default room is always created on demand.
func (a *App) mutate(ctx context.Context, code string, create bool, fn func(room *models.Room) error) (models.SessionState, error) {
	if err := checkRoomCode(code); err != nil {
		return models.SessionState{}, err
	}

	unlock := a.locks.lock(code)
	defer unlock()

	var (
		room *models.Room
		err  error
	)
	if create || code == a.defaultRoom {
		room, err = a.store.CreateRoom(ctx, code)
	} else {
		room, err = a.store.GetRoom(ctx, code)
	}
	if err != nil {
		return models.SessionState{}, fmt.Errorf("failed to load room: %w", err)
	}

	if err := fn(room); err != nil {
		return models.SessionState{}, err
	}

	if err := a.store.UpdateRoom(ctx, room); err != nil {
		return models.SessionState{}, fmt.Errorf("failed to update room: %w", err)
	}

	state := Snapshot(room)
	a.publish(ctx, state)
	return state, nil
}

func (a *App) publish(ctx context.Context, state models.SessionState) {
	for _, p := range a.publishers {
		p.Publish(ctx, state)
	}
	log.Debug().
		Str("room", state.Code).
		Int("votes", len(state.Votes)).
		Bool("show_results", state.ShowResults).
		Msg("state published")
}

func checkRoomCode(code string) error {
	if err := validation.ValidateRoomCode(code); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}
