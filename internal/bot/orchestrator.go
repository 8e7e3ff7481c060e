package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/freeeve/conquest/api/internal/replica"
	"github.com/freeeve/conquest/api/pkg/conquest"
)

// Config describes one bot match.
type Config struct {
	BaseURL   string
	Players   int
	SetupMode string
	Strategy  string
	// MaxTurns stops the session once this turn is reached; zero plays to a winner.
	MaxTurns int
	Seed     uint64
}

// maxRejections is how many refused moves in a row end the match.
const maxRejections = 5

// Orchestrator drives a session of bot players through the server's public
// API, one replica per bot.
type Orchestrator struct {
	cfg   Config
	graph *conquest.Graph
	bots  []*BotPlayer
}

// BotPlayer is one seat: its client, strategy and local replica.
type BotPlayer struct {
	Client   *Client
	Strategy Strategy
	Replica  *replica.Replica
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Players < 2 {
		cfg.Players = 2
	}
	if cfg.SetupMode == "" {
		cfg.SetupMode = "random"
	}
	return &Orchestrator{cfg: cfg}
}

// Run executes a full session: log in, create, join, start, play. The
// creator is seated by the server; the other bots join.
func (o *Orchestrator) Run(ctx context.Context) error {
	log.Info().Str("strategy", o.cfg.Strategy).Int("players", o.cfg.Players).Str("setup", o.cfg.SetupMode).Msg("Starting bot session")

	for i := 1; i <= o.cfg.Players; i++ {
		name := fmt.Sprintf("Bot%d", i)
		strat, err := NewStrategy(o.cfg.Strategy, o.cfg.Seed+uint64(i))
		if err != nil {
			return err
		}
		c := NewClient(name, o.cfg.BaseURL)
		if err := c.Login(ctx); err != nil {
			return fmt.Errorf("login %s: %w", name, err)
		}
		o.bots = append(o.bots, &BotPlayer{Client: c, Strategy: strat})
	}

	creator := o.bots[0].Client
	graph, err := creator.GetMap(ctx)
	if err != nil {
		return fmt.Errorf("get map: %w", err)
	}
	o.graph = graph

	sessionID, err := creator.CreateSession(ctx, "Bot Session", o.cfg.SetupMode, o.cfg.Players)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	log.Info().Str("sessionId", sessionID).Msg("Session created")

	for _, bp := range o.bots[1:] {
		if err := bp.Client.JoinSession(ctx, sessionID); err != nil {
			return fmt.Errorf("join %s: %w", bp.Client.Name(), err)
		}
	}
	if err := creator.StartSession(ctx, sessionID); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	log.Info().Msg("Session started")

	for _, bp := range o.bots {
		bp.Replica = replica.New(sessionID, bp.Client.UserID(), bp.Client,
			replica.WithLogger(log.With().Str("bot", bp.Client.Name()).Logger()))
		if err := bp.Replica.Sync(ctx); err != nil {
			return err
		}
		if err := bp.Client.ConnectWS(ctx); err != nil {
			return fmt.Errorf("ws connect %s: %w", bp.Client.Name(), err)
		}
		if err := bp.Client.Subscribe(sessionID); err != nil {
			return fmt.Errorf("ws subscribe %s: %w", bp.Client.Name(), err)
		}
		go pumpSnapshots(bp)
	}
	defer func() {
		for _, bp := range o.bots {
			bp.Client.CloseWS()
		}
	}()

	return o.playLoop(ctx, sessionID)
}

// pumpSnapshots feeds pushed snapshots into the bot's replica until the
// socket closes.
func pumpSnapshots(bp *BotPlayer) {
	for event := range bp.Client.Events() {
		if event.Type != "snapshot" {
			log.Debug().Str("bot", bp.Client.Name()).Str("type", event.Type).Msg("Ignoring event")
			continue
		}
		var snap conquest.Snapshot
		if err := json.Unmarshal(event.Data, &snap); err != nil {
			log.Warn().Err(err).Str("bot", bp.Client.Name()).Msg("Undecodable snapshot event")
			continue
		}
		bp.Replica.Apply(snap)
	}
}

// turnKey identifies one player's turn so per-turn counters can reset.
type turnKey struct {
	turn   int
	player string
}

// playLoop lets whichever bot holds the turn act until the session ends.
func (o *Orchestrator) playLoop(ctx context.Context, sessionID string) error {
	var (
		key       turnKey
		attacks   int
		fortified bool
		rejected  int
	)
	snap := o.bots[0].Replica.Snapshot()
	for {
		if err := ctx.Err(); err != nil {
			log.Info().Msg("Context cancelled, stopping bots")
			return err
		}

		bp := o.seat(snap.CurrentPlayerID())
		if bp == nil {
			return fmt.Errorf("no bot holds seat %d", snap.CurrentPlayerIndex)
		}
		if err := bp.Replica.Sync(ctx); err != nil {
			if err := o.reconnect(ctx, bp); err != nil {
				return err
			}
		}
		snap = bp.Replica.Snapshot()

		if snap.Winner != "" {
			log.Info().Str("winner", snap.Winner).Int("turn", snap.TurnNumber).Msg("Session won")
			return nil
		}
		if o.cfg.MaxTurns > 0 && snap.TurnNumber > o.cfg.MaxTurns {
			log.Info().Int("turn", snap.TurnNumber).Msg("Turn limit reached, stopping session")
			return o.bots[0].Client.StopSession(ctx, sessionID)
		}
		if snap.CurrentPlayerID() != bp.Client.UserID() {
			continue
		}

		if k := (turnKey{snap.TurnNumber, bp.Client.UserID()}); k != key {
			key, attacks, fortified = k, 0, false
		}
		move := bp.Strategy.NextMove(Turn{
			Snapshot:  snap,
			Me:        bp.Client.UserID(),
			Graph:     o.graph,
			Attacks:   attacks,
			Fortified: fortified,
		})

		next, err := bp.Replica.Submit(ctx, move.Action, move.Payload)
		if next.Version >= snap.Version {
			snap = next
		}
		switch {
		case err == nil:
			rejected = 0
			switch move.Action {
			case conquest.ActionAttackResult:
				attacks++
			case conquest.ActionFortify:
				fortified = true
			}
			log.Debug().Str("bot", bp.Client.Name()).Str("action", string(move.Action)).Str("phase", string(snap.Phase)).Msg("Move accepted")
		case errors.Is(err, conquest.ErrGameOver):
			log.Info().Str("bot", bp.Client.Name()).Msg("Session already over")
			return nil
		case errors.Is(err, conquest.ErrStaleVersion), errors.Is(err, conquest.ErrNotYourTurn):
			log.Debug().Err(err).Str("bot", bp.Client.Name()).Msg("Out of date, resyncing")
		case errors.Is(err, conquest.ErrInvalidOperation), errors.Is(err, replica.ErrRejected):
			rejected++
			log.Warn().Err(err).Str("bot", bp.Client.Name()).Str("action", string(move.Action)).Msg("Move rejected")
			if rejected >= maxRejections {
				return fmt.Errorf("%s stuck in %s: %w", bp.Client.Name(), snap.Phase, err)
			}
			// Give up on attacking or fortifying for the rest of this turn.
			attacks, fortified = 1<<30, true
		default:
			if err := o.reconnect(ctx, bp); err != nil {
				return err
			}
		}
	}
}

func (o *Orchestrator) reconnect(ctx context.Context, bp *BotPlayer) error {
	dropped, err := bp.Replica.Reconnect(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", bp.Client.Name(), err)
	}
	for _, in := range dropped {
		log.Warn().Str("bot", bp.Client.Name()).Str("action", string(in.Action)).Uint64("clientVersion", in.ClientVersion).Msg("Dropped unacknowledged intent")
	}
	return nil
}

func (o *Orchestrator) seat(userID string) *BotPlayer {
	for _, bp := range o.bots {
		if bp.Client.UserID() == userID {
			return bp
		}
	}
	return nil
}
