package rules

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dylhunn/dragontoothmg"
	"github.com/notnil/chess"
)

// dragonPosition keeps a dragontoothmg board by value. Board holds no
// pointers, so copying the struct is enough to derive a child position.
// Repetition keys come from the board's Zobrist hash; the FEN is only
// rendered when asked for.
type dragonPosition struct {
	board   dragontoothmg.Board
	native  []dragontoothmg.Move
	moves   []Move
	hist    *history
	inCheck bool

	fenOnce sync.Once
	fen     string
}

func newDragonPosition(fen string, prev *history) *dragonPosition {
	return newDragonFromBoard(dragontoothmg.ParseFen(fen), prev)
}

func newDragonFromBoard(board dragontoothmg.Board, prev *history) *dragonPosition {
	p := &dragonPosition{board: board}
	p.native = p.board.GenerateLegalMoves()
	p.moves = make([]Move, len(p.native))
	for i, m := range p.native {
		p.moves[i] = Move{
			From:  chess.Square(m.From()),
			To:    chess.Square(m.To()),
			Promo: dragonPromo(m.Promote()),
		}
	}
	key := binary.LittleEndian.AppendUint64(nil, p.board.Hash())
	p.hist = prev.extend(string(key), int(p.board.Halfmoveclock))
	p.inCheck = p.board.OurKingInCheck()
	return p
}

func dragonPromo(pc dragontoothmg.Piece) chess.PieceType {
	switch pc {
	case dragontoothmg.Queen:
		return chess.Queen
	case dragontoothmg.Rook:
		return chess.Rook
	case dragontoothmg.Bishop:
		return chess.Bishop
	case dragontoothmg.Knight:
		return chess.Knight
	}
	return chess.NoPieceType
}

func (p *dragonPosition) LegalMoves() []Move { return p.moves }

func (p *dragonPosition) Apply(m Move) (Position, error) {
	for i, lm := range p.moves {
		if lm != m {
			continue
		}
		child := p.board
		child.Apply(p.native[i])
		return newDragonFromBoard(child, p.hist), nil
	}
	return nil, fmt.Errorf("%w: %s in %s", ErrIllegalMove, m, p.FEN())
}

func (p *dragonPosition) Checkmate() bool { return len(p.moves) == 0 && p.inCheck }

func (p *dragonPosition) Stalemate() bool { return len(p.moves) == 0 && !p.inCheck }

func (p *dragonPosition) Draw() bool {
	return drawn(p, p.Stalemate(), p.hist)
}

func (p *dragonPosition) InCheck() bool { return p.inCheck }

func (p *dragonPosition) Turn() chess.Color {
	if p.board.Wtomove {
		return chess.White
	}
	return chess.Black
}

func (p *dragonPosition) PieceAt(sq chess.Square) chess.Piece {
	bit := uint64(1) << uint(sq)
	color := chess.White
	side := &p.board.White
	if p.board.Black.All&bit != 0 {
		color = chess.Black
		side = &p.board.Black
	} else if side.All&bit == 0 {
		return chess.NoPiece
	}
	switch {
	case side.Pawns&bit != 0:
		return pieceOf(chess.Pawn, color)
	case side.Knights&bit != 0:
		return pieceOf(chess.Knight, color)
	case side.Bishops&bit != 0:
		return pieceOf(chess.Bishop, color)
	case side.Rooks&bit != 0:
		return pieceOf(chess.Rook, color)
	case side.Queens&bit != 0:
		return pieceOf(chess.Queen, color)
	case side.Kings&bit != 0:
		return pieceOf(chess.King, color)
	}
	return chess.NoPiece
}

func (p *dragonPosition) FEN() string {
	p.fenOnce.Do(func() { p.fen = p.board.ToFen() })
	return p.fen
}

func pieceOf(t chess.PieceType, c chess.Color) chess.Piece {
	white := c == chess.White
	switch t {
	case chess.King:
		if white {
			return chess.WhiteKing
		}
		return chess.BlackKing
	case chess.Queen:
		if white {
			return chess.WhiteQueen
		}
		return chess.BlackQueen
	case chess.Rook:
		if white {
			return chess.WhiteRook
		}
		return chess.BlackRook
	case chess.Bishop:
		if white {
			return chess.WhiteBishop
		}
		return chess.BlackBishop
	case chess.Knight:
		if white {
			return chess.WhiteKnight
		}
		return chess.BlackKnight
	case chess.Pawn:
		if white {
			return chess.WhitePawn
		}
		return chess.BlackPawn
	}
	return chess.NoPiece
}
