package models

import (
	"strings"
	"time"

	"github.com/spf13/cast"
)

// Settings are the match options chosen by the room authority.
type Settings struct {
	SpectatorEnabled bool   `json:"spectatorEnabled"`
	Difficulty       string `json:"difficulty"`
	Language         string `json:"language"`
	TimeLimit        string `json:"timeLimit"`
	Rounds           int    `json:"rounds"`
}

func DefaultSettings() Settings {
	return Settings{
		SpectatorEnabled: false,
		Difficulty:       "fast",
		Language:         "cpp",
		TimeLimit:        "none",
		Rounds:           3,
	}
}

// Merge returns a copy of s with every known key of patch applied. Unknown keys are ignored.
// An unparseable round count is stored as 0, which a match treats as a single round.
func (s Settings) Merge(patch map[string]any) Settings {
	for key, v := range patch {
		switch key {
		case "spectatorEnabled":
			s.SpectatorEnabled = cast.ToBool(v)
		case "difficulty":
			s.Difficulty = cast.ToString(v)
		case "language":
			s.Language = cast.ToString(v)
		case "timeLimit":
			s.TimeLimit = cast.ToString(v)
		case "rounds", "roundCount":
			s.Rounds = cast.ToInt(v)
		}
	}
	return s
}

// RoundTimeout parses TimeLimit. "none" and empty mean unlimited, a bare number is minutes,
// anything else must be a Go duration. ok is false when there is no positive limit.
func (s Settings) RoundTimeout() (time.Duration, bool) {
	limit := strings.TrimSpace(s.TimeLimit)
	if limit == "" || strings.EqualFold(limit, "none") {
		return 0, false
	}
	if minutes, err := cast.ToFloat64E(limit); err == nil {
		d := time.Duration(minutes * float64(time.Minute))
		return d, d > 0
	}
	d, err := time.ParseDuration(limit)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
