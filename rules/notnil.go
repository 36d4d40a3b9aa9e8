package rules

import (
	"fmt"

	"github.com/notnil/chess"
)

// notnilPosition wraps a *chess.Position. Children come from
// Position.Update with the move as generated, so no game history is copied.
type notnilPosition struct {
	pos     *chess.Position
	native  []*chess.Move
	moves   []Move
	fen     string
	hist    *history
	inCheck bool
}

func newNotnilPosition(pos *chess.Position, prev *history) *notnilPosition {
	p := &notnilPosition{
		pos:    pos,
		native: pos.ValidMoves(),
		fen:    pos.String(),
	}
	p.moves = make([]Move, len(p.native))
	for i, m := range p.native {
		p.moves[i] = Move{From: m.S1(), To: m.S2(), Promo: m.Promo()}
	}
	p.hist = prev.extend(positionKey(p.fen), pos.HalfMoveClock())
	p.inCheck = kingAttacked(p.PieceAt, pos.Turn())
	return p
}

func (p *notnilPosition) LegalMoves() []Move { return p.moves }

func (p *notnilPosition) Apply(m Move) (Position, error) {
	for i, lm := range p.moves {
		if lm == m {
			return newNotnilPosition(p.pos.Update(p.native[i]), p.hist), nil
		}
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrIllegalMove, m, p.fen)
}

func (p *notnilPosition) Checkmate() bool { return len(p.moves) == 0 && p.inCheck }

func (p *notnilPosition) Stalemate() bool { return len(p.moves) == 0 && !p.inCheck }

func (p *notnilPosition) Draw() bool {
	return drawn(p, p.Stalemate(), p.hist)
}

func (p *notnilPosition) InCheck() bool { return p.inCheck }

func (p *notnilPosition) Turn() chess.Color { return p.pos.Turn() }

func (p *notnilPosition) PieceAt(sq chess.Square) chess.Piece { return p.pos.Board().Piece(sq) }

func (p *notnilPosition) FEN() string { return p.fen }
