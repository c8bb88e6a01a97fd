package game

import "fmt"

// Position is a cell coordinate on a board.
type Position struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

// At returns the neighbouring position one step in direction d.
func (p Position) At(d Direction) Position {
	return Position{Row: p.Row + d.RowDelta, Column: p.Column + d.ColumnDelta}
}

func (p Position) String() string {
	return fmt.Sprintf("[r:%d,c:%d]", p.Row, p.Column)
}

// Direction is one of the eight unit vectors around a cell.
type Direction struct {
	RowDelta    int
	ColumnDelta int
}

var (
	UpperLeft  = Direction{-1, -1}
	Up         = Direction{-1, 0}
	UpperRight = Direction{-1, 1}
	Left       = Direction{0, -1}
	Right      = Direction{0, 1}
	LowerLeft  = Direction{1, -1}
	Down       = Direction{1, 0}
	LowerRight = Direction{1, 1}
)

// Directions lists all eight unit vectors, clockwise from UpperLeft.
var Directions = []Direction{UpperLeft, Up, UpperRight, Right, LowerRight, Down, LowerLeft, Left}

// Opposite returns the vector pointing the other way.
func (d Direction) Opposite() Direction {
	return Direction{-d.RowDelta, -d.ColumnDelta}
}
