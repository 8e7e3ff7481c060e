package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/conquest/api/internal/bot"
)

func main() {
	url := flag.String("url", "http://localhost:8009", "server base URL")
	players := flag.Int("players", 3, "number of bot players (2-6)")
	strategyName := flag.String("strategy", "dice", "bot strategy (dice, passive)")
	setup := flag.String("setup", "random", "setup mode (random, claim)")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "dice seed")
	maxTurns := flag.Int("max-turns", 100, "stop the session after this many turns (0 plays to a winner)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		log.Info().Msg("Received shutdown signal")
		cancel()
	}()

	orch := bot.NewOrchestrator(bot.Config{
		BaseURL:   *url,
		Players:   *players,
		SetupMode: *setup,
		Strategy:  *strategyName,
		MaxTurns:  *maxTurns,
		Seed:      *seed,
	})
	if err := orch.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("Bot orchestrator failed")
	}
	log.Info().Msg("Bot session completed successfully")
}
