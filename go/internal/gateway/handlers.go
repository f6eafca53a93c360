package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/room"
	"github.com/mcdev12/planning-poker/go/internal/validation"
)

const maxBodyBytes = 64 << 10

type voteRequest struct {
	UserID   string          `json:"userId"`
	UserName string          `json:"userName"`
	Value    json.RawMessage `json:"value"`
}

type initVotesRequest struct {
	Votes []models.Vote `json:"votes"`
}

type leaveRequest struct {
	UserID string `json:"userId"`
}

type createRoomResponse struct {
	Code string `json:"code"`
}

type scaleResponse struct {
	Values []models.Value `json:"values"`
}

// decodeBody reads a JSON body into v; malformed bodies are validation errors.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %w", room.ErrValidation, err)
	}
	return nil
}

// HandleVote records a participant's estimate.
func (s *Service) HandleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	// An absent value is not the same as an explicit null.
	if len(req.Value) == 0 {
		writeError(w, r, fmt.Errorf("%w: %w", room.ErrValidation, validation.ErrInvalidVote))
		return
	}
	var value models.Value
	if err := json.Unmarshal(req.Value, &value); err != nil {
		writeError(w, r, fmt.Errorf("%w: %w", room.ErrValidation, validation.ErrInvalidVote))
		return
	}

	code := roomCode(r, s.app.DefaultRoom())
	if _, err := s.app.Vote(r.Context(), code, req.UserID, req.UserName, value); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// HandleInitVotes registers a roster of participants without overwriting votes.
func (s *Service) HandleInitVotes(w http.ResponseWriter, r *http.Request) {
	var req initVotesRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Votes == nil {
		writeError(w, r, fmt.Errorf("%w: votes must be an array", room.ErrValidation))
		return
	}

	code := roomCode(r, s.app.DefaultRoom())
	if _, err := s.app.InitVotes(r.Context(), code, req.Votes); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// HandleReveal shows every vote in the room.
func (s *Service) HandleReveal(w http.ResponseWriter, r *http.Request) {
	code := roomCode(r, s.app.DefaultRoom())
	if _, err := s.app.Reveal(r.Context(), code); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// HandleReset starts a new round.
func (s *Service) HandleReset(w http.ResponseWriter, r *http.Request) {
	code := roomCode(r, s.app.DefaultRoom())
	if _, err := s.app.Reset(r.Context(), code); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// HandleLeave removes a participant.
func (s *Service) HandleLeave(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	code := roomCode(r, s.app.DefaultRoom())
	if _, err := s.app.Leave(r.Context(), code, req.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w)
}

// HandleState returns the current snapshot for polling clients.
func (s *Service) HandleState(w http.ResponseWriter, r *http.Request) {
	code := roomCode(r, s.app.DefaultRoom())
	state, err := s.app.State(r.Context(), code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// HandleCreateRoom opens a room under a generated code.
func (s *Service) HandleCreateRoom(w http.ResponseWriter, r *http.Request) {
	state, err := s.app.CreateRoom(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, createRoomResponse{Code: state.Code})
}

// HandleTeam returns the configured roster.
func (s *Service) HandleTeam(w http.ResponseWriter, r *http.Request) {
	team := s.team
	if team.Members == nil {
		team.Members = []models.TeamMember{}
	}
	writeJSON(w, http.StatusOK, team)
}

// HandleScale returns the accepted estimate values.
func (s *Service) HandleScale(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scaleResponse{Values: validation.Scale()})
}

// HandleHealth reports liveness.
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// HandleInfo reports connection statistics.
func (s *Service) HandleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.GetStats())
}
