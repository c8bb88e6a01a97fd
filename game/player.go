package game

import "fmt"

// Player is a seat holder. Identity is the username alone; the remaining
// fields are display metadata.
type Player struct {
	Username     string `json:"username"`
	Avatar       string `json:"avatar,omitempty"`
	DisplayName  string `json:"displayName,omitempty"`
	DisplayColor string `json:"displayColor,omitempty"`
}

// NewPlayer returns a player with only a username.
func NewPlayer(username string) Player {
	return Player{Username: username}
}

// Is reports whether p and o are the same player.
func (p Player) Is(o Player) bool {
	return p.Username == o.Username
}

// Name prefers the display name over the username.
func (p Player) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

func (p Player) String() string {
	return fmt.Sprintf("Player '%s'", p.Name())
}

// IndexOf returns the seat of p among players, or -1.
func IndexOf(players []Player, p Player) int {
	for i, candidate := range players {
		if candidate.Is(p) {
			return i
		}
	}
	return -1
}
