package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/mcdev12/planning-poker/go/internal/models"
	"github.com/mcdev12/planning-poker/go/internal/validation"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

type teamFile struct {
	Team models.Team `yaml:"team"`
}

// LoadTeam reads the roster offered to clients. A missing file yields an
// empty roster.
func LoadTeam(path string) (models.Team, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", path).Msg("team config not found, using empty roster")
		return models.Team{Members: []models.TeamMember{}}, nil
	}
	if err != nil {
		return models.Team{}, fmt.Errorf("failed to read team config: %w", err)
	}

	var file teamFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return models.Team{}, fmt.Errorf("failed to parse team config: %w", err)
	}

	seen := make(map[string]bool, len(file.Team.Members))
	for _, m := range file.Team.Members {
		if err := validation.ValidateParticipant(m.ID, m.Name); err != nil {
			return models.Team{}, fmt.Errorf("invalid team member %q: %w", m.ID, err)
		}
		if seen[m.ID] {
			return models.Team{}, fmt.Errorf("duplicate team member id %q", m.ID)
		}
		seen[m.ID] = true
	}
	if file.Team.Members == nil {
		file.Team.Members = []models.TeamMember{}
	}
	return file.Team, nil
}
