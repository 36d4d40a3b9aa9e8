package main

import (
	"context"
	"log"
	"math/rand"
	"time"

	"github.com/hajimehoshi/ebiten/v2"

	"chesslives/config"
	"chesslives/game"
	"chesslives/meta"
	"chesslives/session"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	store, closeStore, err := meta.Open(ctx, cfg.Store.Kind, cfg.Store.Dir, cfg.DB.DSN())
	if err != nil {
		log.Fatalf("failed to open %s store: %v", cfg.Store.Kind, err)
	}
	defer closeStore()

	base := session.Options{
		Backend:    cfg.Game.Backend,
		DelayScale: cfg.Game.DelayScale,
		Verbose:    cfg.Logs.Verbose(),
	}
	if cfg.Game.Seed != 0 {
		base.Rand = rand.New(rand.NewSource(cfg.Game.Seed))
	}
	g, err := game.New(ctx, meta.NewLedger(store, cfg.Game.Difficulty), game.DefaultPlayer, base)
	if err != nil {
		log.Fatalf("failed to load player state: %v", err)
	}
	defer g.Close()

	ebiten.SetWindowSize(game.ScreenWidth, game.ScreenHeight)
	ebiten.SetWindowTitle("Chess Lives")
	ebiten.SetWindowResizable(true)
	if err := ebiten.RunGame(g); err != nil {
		log.Fatal(err)
	}
}
