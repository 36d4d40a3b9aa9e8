// Package rules is the narrow chess-rules contract the bots search over.
//
// Two backends implement Position: one over github.com/dylhunn/dragontoothmg,
// the default, and one over github.com/notnil/chess. Both speak the notnil vocabulary for
// squares, pieces and colors so callers never see the backend types.
package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var (
	ErrIllegalMove = errors.New("rules: illegal move")
	ErrBadFEN      = errors.New("rules: malformed FEN")
	ErrBadBackend  = errors.New("rules: unknown backend")
)

// Position is an immutable chess position plus the history needed for
// repetition detection. Apply never mutates the receiver.
type Position interface {
	LegalMoves() []Move
	Apply(m Move) (Position, error)
	Checkmate() bool
	Stalemate() bool
	Draw() bool
	InCheck() bool
	Turn() chess.Color
	PieceAt(sq chess.Square) chess.Piece
	FEN() string
}

// Move is a single transition: source, destination and optional promotion.
type Move struct {
	From  chess.Square
	To    chess.Square
	Promo chess.PieceType
}

// String returns the move in UCI long algebraic form (e2e4, e7e8q).
func (m Move) String() string {
	return m.From.String() + m.To.String() + promoLetter(m.Promo)
}

func promoLetter(t chess.PieceType) string {
	switch t {
	case chess.Queen:
		return "q"
	case chess.Rook:
		return "r"
	case chess.Bishop:
		return "b"
	case chess.Knight:
		return "n"
	}
	return ""
}

type Backend string

const (
	Notnil Backend = "notnil"
	Dragon Backend = "dragon"
)

func ParseBackend(s string) (Backend, error) {
	switch Backend(strings.ToLower(strings.TrimSpace(s))) {
	case Notnil:
		return Notnil, nil
	case "", Dragon:
		return Dragon, nil
	}
	return "", fmt.Errorf("%w: %q", ErrBadBackend, s)
}

// NewGame returns the initial position on the given backend.
func NewGame(b Backend) Position {
	pos, err := FromFEN(b, StartFEN)
	if err != nil {
		panic(err)
	}
	return pos
}

// FromFEN parses fen on the given backend. The FEN is always validated by
// the notnil decoder first, since dragontoothmg does not report errors.
func FromFEN(b Backend, fen string) (Position, error) {
	fen = strings.TrimSpace(fen)
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFEN, err)
	}
	switch b {
	case Notnil:
		return newNotnilPosition(chess.NewGame(opt).Position(), nil), nil
	case "", Dragon:
		return newDragonPosition(fen, nil), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrBadBackend, b)
}

// ParseMove finds the legal move in pos written as UCI. A promotion without
// a suffix promotes to a queen.
func ParseMove(pos Position, s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, s)
	}
	from, ok1 := parseSquare(s[0:2])
	to, ok2 := parseSquare(s[2:4])
	if !ok1 || !ok2 {
		return Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, s)
	}
	promo := chess.NoPieceType
	if len(s) == 5 {
		promo = promoFromLetter(s[4])
		if promo == chess.NoPieceType {
			return Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, s)
		}
	}
	for _, m := range pos.LegalMoves() {
		if m.From != from || m.To != to {
			continue
		}
		if m.Promo == promo || (promo == chess.NoPieceType && m.Promo == chess.Queen) {
			return m, nil
		}
	}
	return Move{}, fmt.Errorf("%w: %q", ErrIllegalMove, s)
}

func parseSquare(s string) (chess.Square, bool) {
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return chess.NoSquare, false
	}
	return chess.NewSquare(chess.File(s[0]-'a'), chess.Rank(s[1]-'1')), true
}

func promoFromLetter(c byte) chess.PieceType {
	switch c {
	case 'q':
		return chess.Queen
	case 'r':
		return chess.Rook
	case 'b':
		return chess.Bishop
	case 'n':
		return chess.Knight
	}
	return chess.NoPieceType
}

// IsTerminal reports whether the game is over in pos.
func IsTerminal(pos Position) bool {
	return pos.Checkmate() || pos.Draw()
}

// history is the chain of repetition keys leading to a position, newest
// first. Children share their parent's chain.
type history struct {
	key   string
	clock int
	prev  *history
}

// extend records the position with the given key and half-move clock.
func (h *history) extend(key string, clock int) *history {
	return &history{key: key, clock: clock, prev: h}
}

// repetitions counts occurrences of the newest key. A capture or pawn move
// resets the clock and no earlier position can recur, so the walk stops there.
func (h *history) repetitions() int {
	n := 0
	for p, steps := h, 0; p != nil && steps <= h.clock; p, steps = p.prev, steps+1 {
		if p.key == h.key {
			n++
		}
	}
	return n
}

// positionKey drops the move counters from a FEN.
func positionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

// drawn applies the draw rules shared by both backends: stalemate,
// insufficient material, threefold repetition and the fifty-move rule.
func drawn(pos Position, stalemate bool, h *history) bool {
	if stalemate {
		return true
	}
	if insufficientMaterial(pos.PieceAt) {
		return true
	}
	if h.clock >= 100 {
		return true
	}
	return h.repetitions() >= 3
}
