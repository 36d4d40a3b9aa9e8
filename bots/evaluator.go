package bots

import (
	"github.com/notnil/chess"

	"chesslives/rules"
)

type DefaultEvaluator struct{}

const (
	MateScore      = 10000
	MobilityWeight = 5
	CheckPenalty   = 50
)

// Rows are listed from rank 8 down to rank 1, as the board is drawn.
var pawnTable = [8][8]int{
	{0, 0, 0, 0, 0, 0, 0, 0},
	{50, 50, 50, 50, 50, 50, 50, 50},
	{10, 10, 20, 30, 30, 20, 10, 10},
	{5, 5, 10, 25, 25, 10, 5, 5},
	{0, 0, 0, 20, 20, 0, 0, 0},
	{5, -5, -10, 0, 0, -10, -5, 5},
	{5, 10, 10, -20, -20, 10, 10, 5},
	{0, 0, 0, 0, 0, 0, 0, 0},
}

var knightTable = [8][8]int{
	{-50, -40, -30, -30, -30, -30, -40, -50},
	{-40, -20, 0, 0, 0, 0, -20, -40},
	{-30, 0, 10, 15, 15, 10, 0, -30},
	{-30, 5, 15, 20, 20, 15, 5, -30},
	{-30, 0, 15, 20, 20, 15, 0, -30},
	{-30, 5, 10, 15, 15, 10, 5, -30},
	{-40, -20, 0, 5, 5, 0, -20, -40},
	{-50, -40, -30, -30, -30, -30, -40, -50},
}

// Evaluate scores pos from Black's side: positive favours Black.
func (e DefaultEvaluator) Evaluate(pos rules.Position) int {
	if pos.Checkmate() {
		if pos.Turn() == chess.Black {
			return -MateScore
		}
		return MateScore
	}
	if pos.Draw() {
		return 0
	}
	return e.materialScore(pos) + e.mobilityScore(pos) + e.checkScore(pos)
}

func (e DefaultEvaluator) materialScore(pos rules.Position) int {
	var score int
	for row := 0; row < 8; row++ {
		for col := 0; col < 8; col++ {
			piece := pos.PieceAt(chess.NewSquare(chess.File(col), chess.Rank(7-row)))
			if piece == chess.NoPiece {
				continue
			}
			tableRow := row
			if piece.Color() == chess.White {
				tableRow = 7 - row
			}
			value := PieceValue(piece.Type())
			switch piece.Type() {
			case chess.Pawn:
				value += pawnTable[tableRow][col]
			case chess.Knight:
				value += knightTable[tableRow][col]
			}
			if piece.Color() == chess.Black {
				score += value
			} else {
				score -= value
			}
		}
	}
	return score
}

func (e DefaultEvaluator) mobilityScore(pos rules.Position) int {
	mobility := len(pos.LegalMoves()) * MobilityWeight
	if pos.Turn() == chess.Black {
		return mobility
	}
	return -mobility
}

// checkScore penalises the side to move for standing in check.
func (e DefaultEvaluator) checkScore(pos rules.Position) int {
	if !pos.InCheck() {
		return 0
	}
	if pos.Turn() == chess.Black {
		return -CheckPenalty
	}
	return CheckPenalty
}

func PieceValue(piece chess.PieceType) int {
	switch piece {
	case chess.Pawn:
		return 100
	case chess.Knight:
		return 320
	case chess.Bishop:
		return 330
	case chess.Rook:
		return 500
	case chess.Queen:
		return 900
	case chess.King:
		return 20000
	default:
		return 0
	}
}
