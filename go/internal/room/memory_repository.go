package room

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/planning-poker/go/internal/models"
)

// MemoryRepository keeps rooms in process memory with the same TTL
// semantics as the Redis store. Rooms are stored serialized so callers
// never share state with the repository.
type MemoryRepository struct {
	mu    sync.Mutex
	rooms map[string]memoryEntry
	clock clockwork.Clock
	ttl   time.Duration
}

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// NewMemoryRepository creates an in-process room store.
func NewMemoryRepository(clock clockwork.Clock, ttl time.Duration) *MemoryRepository {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryRepository{
		rooms: make(map[string]memoryEntry),
		clock: clock,
		ttl:   ttl,
	}
}

// lookup returns the live entry for code, evicting it if expired. Caller holds mu.
func (m *MemoryRepository) lookup(code string) (memoryEntry, bool) {
	entry, ok := m.rooms[code]
	if !ok {
		return memoryEntry{}, false
	}
	if !m.clock.Now().Before(entry.expiresAt) {
		delete(m.rooms, code)
		return memoryEntry{}, false
	}
	return entry, true
}

// CreateRoom stores a new empty room with a TTL, or returns the existing one untouched.
func (m *MemoryRepository) CreateRoom(ctx context.Context, code string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.lookup(code); ok {
		return decodeRoom(entry.data)
	}

	now := m.clock.Now()
	room := models.NewRoom(code, now)
	data, err := json.Marshal(room)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal room: %w", err)
	}
	m.rooms[code] = memoryEntry{data: data, expiresAt: now.Add(m.ttl)}
	return room, nil
}

// GetRoom returns ErrRoomNotFound for absent or expired rooms.
func (m *MemoryRepository) GetRoom(ctx context.Context, code string) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookup(code)
	if !ok {
		return nil, ErrRoomNotFound
	}
	return decodeRoom(entry.data)
}

// UpdateRoom replaces the stored room and keeps its expiry.
func (m *MemoryRepository) UpdateRoom(ctx context.Context, room *models.Room) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookup(room.Code)
	if !ok {
		return ErrRoomNotFound
	}
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}
	m.rooms[room.Code] = memoryEntry{data: data, expiresAt: entry.expiresAt}
	return nil
}

// DeleteRoom removes the room; deleting an absent room is not an error.
func (m *MemoryRepository) DeleteRoom(ctx context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rooms, code)
	return nil
}

// RoomExists reports whether a live room is stored.
func (m *MemoryRepository) RoomExists(ctx context.Context, code string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(code)
	return ok, nil
}

// ListRooms returns the codes of live rooms in sorted order.
func (m *MemoryRepository) ListRooms(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	codes := make([]string, 0, len(m.rooms))
	for code := range m.rooms {
		if _, ok := m.lookup(code); ok {
			codes = append(codes, code)
		}
	}
	sort.Strings(codes)
	return codes, nil
}

// CleanupRoom prunes inactive members of one room and deletes it when empty past the grace period.
func (m *MemoryRepository) CleanupRoom(ctx context.Context, code string, inactivityTimeout time.Duration) (CleanupResult, error) {
	room, err := m.GetRoom(ctx, code)
	if err != nil {
		return CleanupResult{Code: code}, err
	}

	result := pruneRoom(room, m.clock.Now(), inactivityTimeout)
	switch {
	case result.Deleted:
		err = m.DeleteRoom(ctx, code)
	case result.RemovedMembers > 0:
		err = m.UpdateRoom(ctx, room)
	}
	return result, err
}

// CleanupInactiveMembers sweeps every stored room.
func (m *MemoryRepository) CleanupInactiveMembers(ctx context.Context, inactivityTimeout time.Duration) (CleanupReport, error) {
	return cleanupAll(ctx, m, func(ctx context.Context, code string) (CleanupResult, error) {
		return m.CleanupRoom(ctx, code, inactivityTimeout)
	})
}

func decodeRoom(data []byte) (*models.Room, error) {
	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	if room.Members == nil {
		room.Members = []models.Member{}
	}
	return &room, nil
}
