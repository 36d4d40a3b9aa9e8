package bots

import (
	"fmt"
	"strings"
	"time"
)

type Difficulty string

const (
	Novice       Difficulty = "novice"
	Intermediate Difficulty = "intermediate"
	Advanced     Difficulty = "advanced"
	Grandmaster  Difficulty = "grandmaster"
)

// Profile bundles how deep the bot searches, how often it blunders on
// purpose and how long the host pretends it is thinking.
type Profile struct {
	Name          Difficulty    `json:"name"`
	SearchDepth   int           `json:"search_depth"`
	Randomness    float64       `json:"randomness"`
	ThinkingDelay time.Duration `json:"thinking_delay"`
}

var profiles = map[Difficulty]Profile{
	Novice:       {Name: Novice, SearchDepth: 2, Randomness: 0.4, ThinkingDelay: 800 * time.Millisecond},
	Intermediate: {Name: Intermediate, SearchDepth: 3, Randomness: 0.2, ThinkingDelay: 1200 * time.Millisecond},
	Advanced:     {Name: Advanced, SearchDepth: 4, Randomness: 0.05, ThinkingDelay: 1800 * time.Millisecond},
	Grandmaster:  {Name: Grandmaster, SearchDepth: 5, Randomness: 0, ThinkingDelay: 2500 * time.Millisecond},
}

// Difficulties lists the presets from weakest to strongest.
func Difficulties() []Difficulty {
	return []Difficulty{Novice, Intermediate, Advanced, Grandmaster}
}

// ProfileFor returns the preset for d; unknown names get the novice preset.
func ProfileFor(d Difficulty) Profile {
	if p, ok := profiles[d]; ok {
		return p
	}
	return profiles[Novice]
}

func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := profiles[d]; !ok {
		return "", fmt.Errorf("%w: unknown difficulty %q", ErrInvalidProfile, s)
	}
	return d, nil
}

func (p Profile) Validate() error {
	if p.SearchDepth < 1 {
		return fmt.Errorf("%w: search depth %d", ErrInvalidProfile, p.SearchDepth)
	}
	if p.Randomness < 0 || p.Randomness > 1 {
		return fmt.Errorf("%w: randomness %v", ErrInvalidProfile, p.Randomness)
	}
	if p.ThinkingDelay < 0 {
		return fmt.Errorf("%w: thinking delay %s", ErrInvalidProfile, p.ThinkingDelay)
	}
	return nil
}
