// Package server exposes chess sessions, one-shot evaluation and search,
// and the player's meta state over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"chesslives/bots"
	"chesslives/meta"
	"chesslives/rules"
	"chesslives/session"
)

const (
	PlayerHeader  = "X-Player-ID"
	DefaultPlayer = "local"
)

type Options struct {
	Backend    rules.Backend
	DelayScale float64
	Seed       int64
	Verbose    bool
}

type Server struct {
	opts   Options
	ledger *meta.Ledger
	games  *Manager
	hub    *Hub

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(opts Options, ledger *meta.Ledger) *Server {
	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Server{
		opts:   opts,
		ledger: ledger,
		games:  NewManager(),
		hub:    NewHub(),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// newRand derives an independent generator for one session or search.
func (s *Server) newRand() *rand.Rand {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return rand.New(rand.NewSource(s.rng.Int63()))
}

// Router builds the HTTP routes.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if s.opts.Verbose {
		router.Use(gin.Logger())
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", PlayerHeader},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", s.health)

	api := router.Group("/api")
	api.POST("/games", s.createGame)
	api.GET("/games/:id", s.withGame(s.getGame))
	api.POST("/games/:id/moves", s.withGame(s.playMove))
	api.POST("/games/:id/undo", s.withGame(s.undo))
	api.POST("/games/:id/redo", s.withGame(s.redo))
	api.POST("/games/:id/reset", s.withGame(s.reset))
	api.DELETE("/games/:id", s.deleteGame)

	api.POST("/evaluate", s.evaluate)
	api.POST("/move", s.bestMove)

	api.GET("/meta", s.getMeta)
	api.PUT("/meta/difficulty", s.setDifficulty)
	api.POST("/meta/ad", s.watchAd)

	router.GET("/ws/games/:id", s.withGame(func(c *gin.Context, g *game) {
		s.serveWS(c.Writer, c.Request, g)
	}))
	return router
}

// Close discards every live session and disconnects its watchers.
func (s *Server) Close() {
	for _, g := range s.games.closeAll() {
		s.hub.CloseRoom(g.id, "server shutting down")
	}
}

func playerID(c *gin.Context) string {
	if p := c.GetHeader(PlayerHeader); p != "" {
		return p
	}
	return DefaultPlayer
}

func (s *Server) withGame(h func(*gin.Context, *game)) gin.HandlerFunc {
	return func(c *gin.Context) {
		g, err := s.games.get(c.Param("id"), playerID(c))
		if err != nil {
			fail(c, err)
			return
		}
		h(c, g)
	}
}

func fail(c *gin.Context, err error) {
	c.AbortWithStatusJSON(statusFor(err), gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrGameNotFound):
		return http.StatusNotFound
	case errors.Is(err, rules.ErrIllegalMove),
		errors.Is(err, rules.ErrBadFEN),
		errors.Is(err, rules.ErrBadBackend),
		errors.Is(err, bots.ErrInvalidProfile),
		errors.Is(err, meta.ErrBadPlayer):
		return http.StatusBadRequest
	case errors.Is(err, meta.ErrNoLives):
		return http.StatusForbidden
	case errors.Is(err, session.ErrNotYourTurn),
		errors.Is(err, session.ErrGameOver),
		errors.Is(err, session.ErrClosed),
		errors.Is(err, session.ErrNothingToUndo),
		errors.Is(err, session.ErrNothingToRedo),
		errors.Is(err, meta.ErrAdUnavailable):
		return http.StatusConflict
	case errors.Is(err, bots.ErrNoMoveAvailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "games": s.games.Len()})
}
