package game

import (
	"fmt"
	"sort"
)

// Board is a rectangular grid holding at most one placement per cell.
// A Board is immutable: Place returns a new Board and leaves the receiver
// untouched.
type Board struct {
	firstRow    int
	firstColumn int
	width       int
	height      int
	cells       map[Position]Placement
}

// NewBoard creates an empty board covering width x height cells starting at
// (firstRow, firstColumn).
func NewBoard(firstRow, firstColumn, width, height int) (Board, error) {
	if width < 1 || height < 1 {
		return Board{}, fmt.Errorf("%w: %dx%d", ErrInvalidBoard, width, height)
	}
	return Board{
		firstRow:    firstRow,
		firstColumn: firstColumn,
		width:       width,
		height:      height,
		cells:       map[Position]Placement{},
	}, nil
}

// MustNewBoard is NewBoard for dimensions known to be valid; it panics
// otherwise.
func MustNewBoard(firstRow, firstColumn, width, height int) Board {
	b, err := NewBoard(firstRow, firstColumn, width, height)
	if err != nil {
		panic(err)
	}
	return b
}

// Square returns an empty size x size board anchored at (0, 0).
func Square(size int) Board {
	return MustNewBoard(0, 0, size, size)
}

// LoadBoard rebuilds a board from its dimensions and the placements it
// holds, enforcing the same bounds and occupancy rules as Place.
func LoadBoard(firstRow, firstColumn, width, height int, placements []Placement) (Board, error) {
	b, err := NewBoard(firstRow, firstColumn, width, height)
	if err != nil {
		return Board{}, err
	}
	for _, p := range placements {
		if err = b.check(p); err != nil {
			return Board{}, err
		}
		b.cells[p.Destination] = p
	}
	return b, nil
}

func (b Board) FirstRow() int    { return b.firstRow }
func (b Board) FirstColumn() int { return b.firstColumn }
func (b Board) Width() int       { return b.width }
func (b Board) Height() int      { return b.height }
func (b Board) LastRow() int     { return b.firstRow + b.height - 1 }
func (b Board) LastColumn() int  { return b.firstColumn + b.width - 1 }

// Capacity is the number of cells on the board.
func (b Board) Capacity() int {
	return b.width * b.height
}

// Len is the number of occupied cells.
func (b Board) Len() int {
	return len(b.cells)
}

// Contains reports whether pos lies within the board bounds.
func (b Board) Contains(pos Position) bool {
	return pos.Row >= b.firstRow && pos.Row <= b.LastRow() &&
		pos.Column >= b.firstColumn && pos.Column <= b.LastColumn()
}

// At returns the placement occupying pos, if any.
func (b Board) At(pos Position) (Placement, bool) {
	p, ok := b.cells[pos]
	return p, ok
}

// Occupied reports whether a placement sits on pos.
func (b Board) Occupied(pos Position) bool {
	_, ok := b.cells[pos]
	return ok
}

// IsCompletelyFilled reports whether every cell within bounds is occupied.
func (b Board) IsCompletelyFilled() bool {
	return len(b.cells) == b.Capacity()
}

// Place returns a copy of the board with p on its destination. A shift also
// vacates its source cell.
func (b Board) Place(p Placement) (Board, error) {
	if err := b.check(p); err != nil {
		return b, err
	}

	cells := make(map[Position]Placement, len(b.cells)+1)
	for pos, existing := range b.cells {
		cells[pos] = existing
	}
	if p.Source != nil {
		delete(cells, *p.Source)
	}
	cells[p.Destination] = p

	next := b
	next.cells = cells
	return next, nil
}

func (b Board) check(p Placement) error {
	if !b.Contains(p.Destination) {
		return fmt.Errorf("%w: %s", ErrOutOfBounds, p.Destination)
	}
	if b.Occupied(p.Destination) {
		return fmt.Errorf("%w: %s", ErrPositionOccupied, p.Destination)
	}
	return nil
}

// Placements returns the placements in row-major order.
func (b Board) Placements() []Placement {
	out := make([]Placement, 0, len(b.cells))
	for _, p := range b.cells {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		a, c := out[i].Destination, out[j].Destination
		if a.Row != c.Row {
			return a.Row < c.Row
		}
		return a.Column < c.Column
	})
	return out
}

// Equal compares dimensions and every placement.
func (b Board) Equal(o Board) bool {
	if b.firstRow != o.firstRow || b.firstColumn != o.firstColumn ||
		b.width != o.width || b.height != o.height || len(b.cells) != len(o.cells) {
		return false
	}
	for pos, p := range b.cells {
		q, ok := o.cells[pos]
		if !ok || !p.Equal(q) {
			return false
		}
	}
	return true
}
