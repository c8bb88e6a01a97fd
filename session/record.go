package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/state"
)

var ErrMalformedRecord = errors.New("malformed session record")

// Privacy selects how much of a session a consumer may see.
type Privacy int

const (
	// Public hides every secret token and every placement key.
	Public Privacy = iota
	// Protected shows the viewer's own deck and keys and hides everyone
	// else's.
	Protected
	// Internal shows everything, including the signing secret and version.
	Internal
)

func (p Privacy) String() string {
	switch p {
	case Internal:
		return "INTERNAL"
	case Protected:
		return "PROTECTED"
	}
	return "PUBLIC"
}

// Record is the serialized form of a session used for persistence, webhook
// payloads and mirror synchronization.
type Record struct {
	Version      int64                 `json:"version,omitempty"`
	Game         GameRecord            `json:"game"`
	Board        BoardRecord           `json:"board"`
	Players      []game.Player         `json:"players"`
	PlayerOnTurn *game.Player          `json:"playerOnTurn,omitempty"`
	Status       string                `json:"status"`
	Scores       map[string]int        `json:"scores"`
	Decks        map[string]DeckRecord `json:"decks"`
	PlayedMoves  []MoveRecord          `json:"playedMoves"`
	URL          string                `json:"url,omitempty"`
	Key          string                `json:"key,omitempty"`
}

type GameRecord struct {
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	URL         string               `json:"url,omitempty"`
	Rules       game.RulesDescriptor `json:"rules"`
}

type BoardRecord struct {
	FirstRow        int               `json:"firstRow"`
	FirstColumn     int               `json:"firstColumn"`
	Width           int               `json:"width"`
	Height          int               `json:"height"`
	TokenPlacements []PlacementRecord `json:"tokenPlacements"`
}

type PlacementRecord struct {
	Token       game.Token     `json:"token"`
	Player      game.Player    `json:"player"`
	Source      *game.Position `json:"source,omitempty"`
	Destination game.Position  `json:"destination"`
	Key         string         `json:"key,omitempty"`
	Round       int64          `json:"round,omitempty"`
}

type DeckRecord struct {
	Tokens       []game.Token `json:"tokens"`
	SecretTokens []game.Token `json:"secretTokens"`
}

// MoveRecord stores the timestamp as epoch milliseconds.
type MoveRecord struct {
	Placement PlacementRecord `json:"placement"`
	Violation game.Violation  `json:"violation,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// UpdateRecord is the serialized form of an Update.
type UpdateRecord struct {
	Session Record     `json:"session"`
	Type    UpdateType `json:"type"`
}

// Acknowledgement answers a delivered update or placement.
type Acknowledgement struct {
	Acknowledged bool `json:"acknowledged"`
}

// Record serializes the snapshot for level. viewer names the player whose
// own secrets stay visible at Protected.
func (s *Snapshot) Record(level Privacy, viewer string) Record {
	visible := func(username string) bool {
		return level == Internal || (level == Protected && username == viewer)
	}

	r := Record{
		Game: GameRecord{
			Title:       s.game.Title,
			Description: s.game.Description,
			URL:         s.game.URL,
			Rules:       game.Describe(s.game.Rules),
		},
		Board: BoardRecord{
			FirstRow:        s.board.FirstRow(),
			FirstColumn:     s.board.FirstColumn(),
			Width:           s.board.Width(),
			Height:          s.board.Height(),
			TokenPlacements: []PlacementRecord{},
		},
		Players:     s.Players(),
		Status:      s.status.String(),
		Scores:      make(map[string]int, len(s.players)),
		Decks:       make(map[string]DeckRecord, len(s.players)),
		PlayedMoves: make([]MoveRecord, 0, len(s.moves)),
		URL:         s.url,
	}
	if r.Players == nil {
		r.Players = []game.Player{}
	}
	if level == Internal {
		r.Version = s.version
		r.Key = s.key
	}
	if onTurn, ok := s.PlayerOnTurn(); ok {
		r.PlayerOnTurn = &onTurn
	}

	for _, p := range s.board.Placements() {
		r.Board.TokenPlacements = append(r.Board.TokenPlacements, placementRecord(p, visible(p.Player.Username)))
	}
	for _, p := range s.players {
		r.Scores[p.Username] = s.Score(p)

		deck := s.Deck(p)
		if !visible(p.Username) {
			deck = deck.Redacted()
		}
		r.Decks[p.Username] = DeckRecord{Tokens: deck.Tokens(), SecretTokens: deck.SecretTokens()}
	}
	for _, m := range s.moves {
		r.PlayedMoves = append(r.PlayedMoves, moveRecord(m, visible(m.Placement.Player.Username)))
	}
	return r
}

// MoveRecordOf serializes m including its key.
func MoveRecordOf(m game.Move) MoveRecord {
	return moveRecord(m, true)
}

func moveRecord(m game.Move, withKey bool) MoveRecord {
	return MoveRecord{
		Placement: placementRecord(m.Placement, withKey),
		Violation: m.Violation,
		Timestamp: m.Timestamp.UnixMilli(),
	}
}

// PlacementRecordOf serializes p including its key.
func PlacementRecordOf(p game.Placement) PlacementRecord {
	return placementRecord(p, true)
}

func placementRecord(p game.Placement, withKey bool) PlacementRecord {
	if !withKey {
		p = p.Unsigned()
	}
	r := PlacementRecord{
		Token:       p.Token,
		Player:      p.Player,
		Destination: p.Destination,
		Key:         p.Key,
		Round:       p.Round,
	}
	if p.Source != nil {
		src := *p.Source
		r.Source = &src
	}
	return r
}

// Placement converts the record back into a placement.
func (r PlacementRecord) Placement() game.Placement {
	p := game.Placement{
		Token:       r.Token,
		Player:      r.Player,
		Destination: r.Destination,
		Key:         r.Key,
		Round:       r.Round,
	}
	if r.Source != nil {
		src := *r.Source
		p.Source = &src
	}
	return p
}

// LoadSnapshot rebuilds a snapshot from r, resolving its rules through
// rules. Unknown rule types, or a nil registry, yield stub rules.
func LoadSnapshot(r Record, rules *game.RuleRegistry) (*Snapshot, error) {
	status, err := state.Parse(r.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	var impl game.Rules = game.NewStubRules(r.Game.Rules)
	if rules != nil {
		impl = rules.Resolve(r.Game.Rules)
	}
	g, err := game.NewGame(r.Game.Title, r.Game.Description, r.Game.URL, impl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	placements := make([]game.Placement, 0, len(r.Board.TokenPlacements))
	for _, p := range r.Board.TokenPlacements {
		placements = append(placements, p.Placement())
	}
	board, err := game.LoadBoard(r.Board.FirstRow, r.Board.FirstColumn, r.Board.Width, r.Board.Height, placements)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}

	snap := &Snapshot{
		version: r.Version,
		game:    g,
		board:   board,
		status:  status,
		players: append([]game.Player(nil), r.Players...),
		url:     r.URL,
		decks:   make(map[string]game.Deck, len(r.Decks)),
		scores:  make(map[string]int, len(r.Scores)),
		key:     r.Key,
	}
	for _, p := range snap.players {
		if p.Username == "" {
			return nil, fmt.Errorf("%w: player without username", ErrMalformedRecord)
		}
	}
	if r.PlayerOnTurn != nil {
		snap.onTurn, snap.hasTurn = *r.PlayerOnTurn, true
	}
	for username, d := range r.Decks {
		snap.decks[username] = game.NewDeck(d.Tokens, d.SecretTokens)
	}
	for username, score := range r.Scores {
		snap.scores[username] = score
	}
	for _, m := range r.PlayedMoves {
		snap.moves = append(snap.moves, game.Move{
			Placement: m.Placement.Placement(),
			Violation: m.Violation,
			Timestamp: time.UnixMilli(m.Timestamp),
		})
	}
	return snap, nil
}

// DecodeRecord parses a JSON session record.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRecord, err)
	}
	return r, nil
}

// UpdateRecord serializes u for level and viewer.
func (u Update) Record(level Privacy, viewer string) UpdateRecord {
	return UpdateRecord{Session: u.Snapshot.Record(level, viewer), Type: u.Type}
}
