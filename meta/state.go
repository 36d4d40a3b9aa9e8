// Package meta holds the meta-game around a chess match: lives, score,
// chosen difficulty and the ad-gated life refill. State only changes
// through the transition methods below; persistence is a separate Store.
package meta

import (
	"errors"
	"time"

	"chesslives/bots"
)

type Phase string

const (
	PhaseMenu      Phase = "menu"
	PhasePlaying   Phase = "playing"
	PhaseGameOver  Phase = "game-over"
	PhaseLifeEmpty Phase = "life-empty"
	PhaseSettings  Phase = "settings"
)

// Result is a finished game seen from the human (White) side.
type Result string

const (
	Win  Result = "win"
	Lose Result = "lose"
	Draw Result = "draw"
)

const (
	DefaultMaxLives = 5
	RegenInterval   = 30 * time.Minute
	AdCooldown      = 5 * time.Minute
	WinPoints       = 100
	DrawPoints      = 25
)

var (
	ErrAdUnavailable = errors.New("meta: ad not available")
	ErrNoLives       = errors.New("meta: no lives left")
)

type State struct {
	Lives           int             `json:"lives"`
	MaxLives        int             `json:"max_lives"`
	Score           int             `json:"score"`
	Difficulty      bots.Difficulty `json:"difficulty"`
	Phase           Phase           `json:"phase"`
	LastLossAt      *time.Time      `json:"last_loss_at,omitempty"`
	AdCooldownUntil time.Time       `json:"ad_cooldown_until"`
}

func NewState() State {
	return State{
		Lives:      DefaultMaxLives,
		MaxLives:   DefaultMaxLives,
		Difficulty: bots.Novice,
		Phase:      PhaseMenu,
	}
}

// ScoreMultiplier scales the points of a win by difficulty.
func ScoreMultiplier(d bots.Difficulty) int {
	switch d {
	case bots.Intermediate:
		return 2
	case bots.Advanced:
		return 3
	case bots.Grandmaster:
		return 5
	default:
		return 1
	}
}

func (s *State) CanPlay() bool {
	return s.Lives > 0
}

func (s *State) LoseLife(now time.Time) {
	if s.Lives <= 1 {
		s.Phase = PhaseLifeEmpty
	}
	s.Lives = max(0, s.Lives-1)
	s.LastLossAt = &now
}

func (s *State) GainLife() {
	s.Lives = min(s.MaxLives, s.Lives+1)
}

func (s *State) AddScore(points int) {
	s.Score += points
}

func (s *State) SetDifficulty(d bots.Difficulty) {
	s.Difficulty = d
}

func (s *State) SetPhase(p Phase) {
	s.Phase = p
}

// RegenerateLives grants one life for every full RegenInterval since the
// last loss. It reports whether anything changed.
func (s *State) RegenerateLives(now time.Time) bool {
	if s.LastLossAt == nil {
		return false
	}
	if s.Lives >= s.MaxLives {
		s.LastLossAt = nil
		return true
	}
	changed := false
	last := *s.LastLossAt
	for s.Lives < s.MaxLives && now.Sub(last) >= RegenInterval {
		s.Lives++
		last = last.Add(RegenInterval)
		changed = true
	}
	if !changed {
		return false
	}
	if s.Lives >= s.MaxLives {
		s.LastLossAt = nil
	} else {
		s.LastLossAt = &last
	}
	if s.Phase == PhaseLifeEmpty {
		s.Phase = PhaseMenu
	}
	return true
}

// NextLifeAt is when the next regenerated life arrives, zero when full.
func (s *State) NextLifeAt() time.Time {
	if s.LastLossAt == nil || s.Lives >= s.MaxLives {
		return time.Time{}
	}
	return s.LastLossAt.Add(RegenInterval)
}

func (s *State) CanWatchAd(now time.Time) bool {
	return s.Lives < s.MaxLives && now.After(s.AdCooldownUntil)
}

func (s *State) WatchAd(now time.Time) error {
	if !s.CanWatchAd(now) {
		return ErrAdUnavailable
	}
	s.GainLife()
	s.AdCooldownUntil = now.Add(AdCooldown)
	s.Phase = PhaseMenu
	return nil
}

// StartGame moves to the playing phase if a life is available.
func (s *State) StartGame() error {
	if !s.CanPlay() {
		s.Phase = PhaseLifeEmpty
		return ErrNoLives
	}
	s.Phase = PhasePlaying
	return nil
}

// RecordResult applies the reward or penalty of a finished game and
// returns the points awarded.
func (s *State) RecordResult(r Result, now time.Time) int {
	s.Phase = PhaseGameOver
	switch r {
	case Win:
		points := WinPoints * ScoreMultiplier(s.Difficulty)
		s.AddScore(points)
		return points
	case Draw:
		s.AddScore(DrawPoints)
		return DrawPoints
	case Lose:
		s.LoseLife(now)
	}
	return 0
}
