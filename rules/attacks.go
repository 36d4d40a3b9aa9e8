package rules

import "github.com/notnil/chess"

type pieceLookup func(chess.Square) chess.Piece

var (
	knightSteps = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	rookDirs    = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopDirs  = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

func onBoard(f, r int) bool { return f >= 0 && f < 8 && r >= 0 && r < 8 }

func at(lookup pieceLookup, f, r int) chess.Piece {
	return lookup(chess.NewSquare(chess.File(f), chess.Rank(r)))
}

// kingAttacked reports whether the king of color c stands on an attacked
// square. Boards without that king are never in check.
func kingAttacked(lookup pieceLookup, c chess.Color) bool {
	king := pieceOf(chess.King, c)
	for sq := chess.A1; sq <= chess.H8; sq++ {
		if lookup(sq) == king {
			return squareAttacked(lookup, sq, c.Other())
		}
	}
	return false
}

// squareAttacked reports whether any piece of color by attacks sq.
func squareAttacked(lookup pieceLookup, sq chess.Square, by chess.Color) bool {
	f, r := int(sq.File()), int(sq.Rank())

	// A white pawn attacks upwards, so it sits one rank below the target.
	dir := -1
	if by == chess.Black {
		dir = 1
	}
	pawn := pieceOf(chess.Pawn, by)
	for _, df := range [2]int{-1, 1} {
		if onBoard(f+df, r+dir) && at(lookup, f+df, r+dir) == pawn {
			return true
		}
	}

	knight := pieceOf(chess.Knight, by)
	for _, s := range knightSteps {
		if onBoard(f+s[0], r+s[1]) && at(lookup, f+s[0], r+s[1]) == knight {
			return true
		}
	}

	king := pieceOf(chess.King, by)
	for _, s := range kingSteps {
		if onBoard(f+s[0], r+s[1]) && at(lookup, f+s[0], r+s[1]) == king {
			return true
		}
	}

	queen := pieceOf(chess.Queen, by)
	if slides(lookup, f, r, rookDirs, pieceOf(chess.Rook, by), queen) {
		return true
	}
	return slides(lookup, f, r, bishopDirs, pieceOf(chess.Bishop, by), queen)
}

func slides(lookup pieceLookup, f, r int, dirs [4][2]int, a, b chess.Piece) bool {
	for _, d := range dirs {
		for x, y := f+d[0], r+d[1]; onBoard(x, y); x, y = x+d[0], y+d[1] {
			p := at(lookup, x, y)
			if p == chess.NoPiece {
				continue
			}
			if p == a || p == b {
				return true
			}
			break
		}
	}
	return false
}
