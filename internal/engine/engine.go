package engine

import (
	"strings"
)

// Participant is an opaque identity supplied by the chat platform.
type Participant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Team int

const (
	TeamA Team = 1
	TeamB Team = 2
)

func (t Team) Valid() bool { return t == TeamA || t == TeamB }

func (t Team) String() string {
	switch t {
	case TeamA:
		return "Team A"
	case TeamB:
		return "Team B"
	default:
		return "unknown"
	}
}

// ParseTeam accepts the spellings admins type when reporting a result.
func ParseTeam(s string) (Team, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "team1", "a", "teama":
		return TeamA, nil
	case "2", "team2", "b", "teamb":
		return TeamB, nil
	default:
		return 0, ErrInvalidTeam
	}
}

type SessionKind string

const (
	SessionCaptains SessionKind = "captains"
	SessionMap      SessionKind = "map"
)

func (k SessionKind) Valid() bool { return k == SessionCaptains || k == SessionMap }

// DefaultMapPool is the map list used when none is configured.
var DefaultMapPool = []string{"Plaza", "Castello", "Village", "Canals", "Legacy", "Raid", "Grounded", "Bureau"}
