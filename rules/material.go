package rules

import "github.com/notnil/chess"

// insufficientMaterial follows the usual browser-library rule set: bare
// kings, a single minor piece, or only bishops that all stand on one square
// color.
func insufficientMaterial(lookup pieceLookup) bool {
	pieces, bishops, knights := 0, 0, 0
	bishopShade := 0
	for sq := chess.A1; sq <= chess.H8; sq++ {
		p := lookup(sq)
		if p == chess.NoPiece {
			continue
		}
		pieces++
		switch p.Type() {
		case chess.Bishop:
			bishops++
			bishopShade += (int(sq.File()) + int(sq.Rank())) % 2
		case chess.Knight:
			knights++
		}
	}
	switch {
	case pieces == 2:
		return true
	case pieces == 3 && (bishops == 1 || knights == 1):
		return true
	case bishops > 0 && pieces == bishops+2:
		return bishopShade == 0 || bishopShade == bishops
	}
	return false
}
