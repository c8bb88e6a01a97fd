package game

import "errors"

var (
	ErrInvalidBoard       = errors.New("board width and height must be at least 1")
	ErrPositionOccupied   = errors.New("position already occupied")
	ErrOutOfBounds        = errors.New("position outside the board")
	ErrUnsupported        = errors.New("operation not supported by these rules")
	ErrNoRules            = errors.New("game has no rules")
	ErrInvalidPlayerRange = errors.New("game needs 1 <= min players <= max players")
	ErrDuplicateRules     = errors.New("rules already registered")
	ErrUnknownPlayer      = errors.New("player does not play this game")
)
