package room

import (
	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/stats"
)

// Snapshot converts a stored room into the state pushed to clients.
// Statistics are attached only once results are shown.
func Snapshot(r *models.Room) models.SessionState {
	votes := make([]models.Vote, 0, len(r.Members))
	for _, m := range r.Members {
		votes = append(votes, models.Vote{
			UserID:   m.ID,
			UserName: m.Name,
			Value:    m.Vote,
			Revealed: m.Revealed,
		})
	}

	createdAt := r.CreatedAt
	state := models.SessionState{
		Code:        r.Code,
		Votes:       votes,
		ShowResults: r.ShowResults,
		CreatedAt:   &createdAt,
	}
	if r.ShowResults {
		s := stats.Summarize(votes)
		state.Stats = &s
	}
	return state
}

// emptySnapshot describes a room with no stored record, either never
// created or just deleted.
func emptySnapshot(code string) models.SessionState {
	return models.SessionState{
		Code:  code,
		Votes: []models.Vote{},
	}
}
