package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chesslives/bots"
	"chesslives/meta"
	"chesslives/rules"
	"chesslives/session"
)

const searchTimeout = 30 * time.Second

type metaView struct {
	meta.State
	Multiplier int        `json:"multiplier"`
	NextLifeAt *time.Time `json:"next_life_at,omitempty"`
	CanWatchAd bool       `json:"can_watch_ad"`
}

func newMetaView(st meta.State, now time.Time) metaView {
	v := metaView{
		State:      st,
		Multiplier: meta.ScoreMultiplier(st.Difficulty),
		CanWatchAd: st.CanWatchAd(now),
	}
	if next := st.NextLifeAt(); !next.IsZero() {
		v.NextLifeAt = &next
	}
	return v
}

type gameOverPayload struct {
	Result meta.Result `json:"result"`
	Points int         `json:"points"`
	Meta   metaView    `json:"meta"`
}

type createGameRequest struct {
	Difficulty string `json:"difficulty"`
}

func (s *Server) createGame(c *gin.Context) {
	player := playerID(c)
	var req createGameRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	st, err := s.ledger.Update(c.Request.Context(), player, func(st *meta.State, now time.Time) error {
		if req.Difficulty != "" {
			d, err := bots.ParseDifficulty(req.Difficulty)
			if err != nil {
				return err
			}
			st.SetDifficulty(d)
		}
		return st.StartGame()
	})
	if err != nil {
		fail(c, err)
		return
	}

	g, err := s.startSession(player, st.Difficulty)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"game": g.sess.Snapshot(),
		"meta": newMetaView(st, time.Now()),
	})
}

func (s *Server) startSession(player string, d bots.Difficulty) (*game, error) {
	id := s.games.NewID()
	sess, err := session.New(session.Options{
		ID:         id,
		Backend:    s.opts.Backend,
		Difficulty: d,
		DelayScale: s.opts.DelayScale,
		Rand:       s.newRand(),
		Verbose:    s.opts.Verbose,
		OnUpdate: func(snap session.Snapshot) {
			s.hub.Publish(id, "snapshot", snap)
		},
		OnGameEnd: func(_ session.Snapshot, r meta.Result) {
			s.recordResult(id, player, r)
		},
	})
	if err != nil {
		return nil, err
	}
	g := &game{id: id, player: player, sess: sess, createdAt: time.Now()}
	s.games.add(g)
	log.Printf("[server] %s: new game %s (%s)", player, id, d)
	return g, nil
}

func (s *Server) recordResult(id, player string, r meta.Result) {
	var points int
	st, err := s.ledger.Update(context.Background(), player, func(st *meta.State, now time.Time) error {
		points = st.RecordResult(r, now)
		return nil
	})
	if err != nil {
		log.Printf("[server] %s: record %s for %s: %v", id, r, player, err)
		return
	}
	log.Printf("[server] %s: %s %s, %d points", id, player, r, points)
	s.hub.Publish(id, "game_over", gameOverPayload{Result: r, Points: points, Meta: newMetaView(st, time.Now())})
}

func (s *Server) getGame(c *gin.Context, g *game) {
	c.JSON(http.StatusOK, g.sess.Snapshot())
}

type moveRequest struct {
	Move string `json:"move" binding:"required"`
}

func (s *Server) playMove(c *gin.Context, g *game) {
	var req moveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	snap, err := g.sess.PlayerMove(req.Move)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) undo(c *gin.Context, g *game) {
	snap, err := g.sess.Undo()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) redo(c *gin.Context, g *game) {
	snap, err := g.sess.Redo()
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// reset starts the same game over; like a new game it needs a life.
func (s *Server) reset(c *gin.Context, g *game) {
	if _, err := s.ledger.Update(c.Request.Context(), g.player, func(st *meta.State, _ time.Time) error {
		return st.StartGame()
	}); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, g.sess.Reset())
}

func (s *Server) deleteGame(c *gin.Context) {
	g, err := s.games.remove(c.Param("id"), playerID(c))
	if err != nil {
		fail(c, err)
		return
	}
	g.sess.Close()
	s.hub.CloseRoom(g.id, "game deleted")
	log.Printf("[server] %s: closed game %s", g.player, g.id)
	c.Status(http.StatusNoContent)
}

type positionRequest struct {
	FEN        string `json:"fen" binding:"required"`
	Backend    string `json:"backend"`
	Difficulty string `json:"difficulty"`
}

func (s *Server) position(req positionRequest) (rules.Position, error) {
	backend := s.opts.Backend
	if req.Backend != "" {
		b, err := rules.ParseBackend(req.Backend)
		if err != nil {
			return nil, err
		}
		backend = b
	}
	return rules.FromFEN(backend, req.FEN)
}

func (s *Server) evaluate(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	pos, err := s.position(req)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"fen":      pos.FEN(),
		"score":    bots.DefaultEvaluator{}.Evaluate(pos),
		"in_check": pos.InCheck(),
		"terminal": rules.IsTerminal(pos),
	})
}

func (s *Server) bestMove(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d := bots.Novice
	if req.Difficulty != "" {
		var err error
		if d, err = bots.ParseDifficulty(req.Difficulty); err != nil {
			fail(c, err)
			return
		}
	}
	pos, err := s.position(req)
	if err != nil {
		fail(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), searchTimeout)
	defer cancel()
	bot := bots.NewMinimaxBot(bots.ProfileFor(d), s.newRand())
	bot.Verbose = s.opts.Verbose
	move, err := bot.BestMove(ctx, pos)
	if err != nil {
		fail(c, err)
		return
	}
	child, err := pos.Apply(move)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"move":       move.String(),
		"difficulty": d,
		"fen":        child.FEN(),
	})
}

func (s *Server) getMeta(c *gin.Context) {
	st, err := s.ledger.Get(c.Request.Context(), playerID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newMetaView(st, time.Now()))
}

type difficultyRequest struct {
	Difficulty string `json:"difficulty" binding:"required"`
}

// setDifficulty also retunes the player's live games from their next bot turn.
func (s *Server) setDifficulty(c *gin.Context) {
	var req difficultyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := bots.ParseDifficulty(req.Difficulty)
	if err != nil {
		fail(c, err)
		return
	}
	player := playerID(c)
	st, err := s.ledger.Update(c.Request.Context(), player, func(st *meta.State, _ time.Time) error {
		st.SetDifficulty(d)
		return nil
	})
	if err != nil {
		fail(c, err)
		return
	}
	for _, g := range s.games.forPlayer(player) {
		g.sess.SetDifficulty(d)
	}
	c.JSON(http.StatusOK, newMetaView(st, time.Now()))
}

func (s *Server) watchAd(c *gin.Context) {
	st, err := s.ledger.Update(c.Request.Context(), playerID(c), func(st *meta.State, now time.Time) error {
		return st.WatchAd(now)
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newMetaView(st, time.Now()))
}
