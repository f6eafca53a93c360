package models

import "time"

// Member is a participant of a room as persisted in the store.
type Member struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Vote         Value     `json:"vote"`
	Revealed     bool      `json:"revealed"`
	LastActivity time.Time `json:"lastActivity"`
}

// Room is the persisted state of one voting context. Members keep the order
// in which they joined.
type Room struct {
	Code        string    `json:"code"`
	Members     []Member  `json:"members"`
	ShowResults bool      `json:"showResults"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewRoom returns an empty, hidden room.
func NewRoom(code string, createdAt time.Time) *Room {
	return &Room{
		Code:      code,
		Members:   []Member{},
		CreatedAt: createdAt,
	}
}

// Member returns a pointer to the member with the given ID, or nil.
func (r *Room) Member(id string) *Member {
	for i := range r.Members {
		if r.Members[i].ID == id {
			return &r.Members[i]
		}
	}
	return nil
}

// RemoveMember drops the member with the given ID and reports whether it existed.
func (r *Room) RemoveMember(id string) bool {
	for i := range r.Members {
		if r.Members[i].ID == id {
			r.Members = append(r.Members[:i], r.Members[i+1:]...)
			return true
		}
	}
	return false
}

// Vote is the wire representation of one participant's estimate.
type Vote struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Value    Value  `json:"value"`
	Revealed bool   `json:"revealed"`
}

// Stats are derived from revealed votes.
type Stats struct {
	Average   *float64 `json:"average"`
	Mode      *float64 `json:"mode"`
	Count     int      `json:"count"`
	Consensus bool     `json:"consensus"`
}

// SessionState is the full snapshot pushed to every subscriber of a room.
// CreatedAt is nil for a room that is not stored.
type SessionState struct {
	Code        string     `json:"code"`
	Votes       []Vote     `json:"votes"`
	ShowResults bool       `json:"showResults"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	Stats       *Stats     `json:"stats,omitempty"`
}

// TeamMember is an entry of the configured roster.
type TeamMember struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Role string `json:"role" yaml:"role"`
}

// Team is the configured roster offered to clients for init-votes.
type Team struct {
	Name    string       `json:"name" yaml:"name"`
	Members []TeamMember `json:"members" yaml:"members"`
}
