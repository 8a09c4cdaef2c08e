// Package discord binds the cleanup engine to the Discord API: token
// bootstrap, the gateway session, message operations, and slash commands.
package discord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"eule/internal/cleaner"
	"eule/internal/store"
	"eule/pkg/logx"
)

const tokenKey = "discord_token"

var (
	ErrAuthenticationFailed = errors.New("discord: authentication failed")
	ErrTokenNotFound        = errors.New("discord: no token stored")
	ErrNotInGuild           = errors.New("discord: command only works in a server")
)

// Bot owns the gateway session. It satisfies both the supervisor's session
// contract and the cleaner's API contract, so scheduled jobs keep working
// across reconnects.
type Bot struct {
	log     logx.Logger
	store   *store.Store
	manager *cleaner.Manager

	startTime       time.Time
	connectAttempts atomic.Uint64

	mu      sync.Mutex
	session *discordgo.Session
}

func NewBot(st *store.Store, mgr *cleaner.Manager, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{
		log:       log,
		store:     st,
		manager:   mgr,
		startTime: time.Now(),
	}
}

// EnsureToken makes sure a token is in the store, asking prompt for one the
// first time. The token is validated against the API before it is persisted.
func (b *Bot) EnsureToken(ctx context.Context, prompt func() (string, error)) error {
	_, ok, err := b.store.Get(ctx, tokenKey)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	token, err := prompt()
	if err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenNotFound
	}
	if err := b.ValidateToken(ctx, token); err != nil {
		return err
	}
	if err := b.store.Set(ctx, tokenKey, []byte(token)); err != nil {
		return err
	}
	b.log.Info("token stored")
	return nil
}

// DeleteToken removes the stored token. Deleting an absent token is fine.
func (b *Bot) DeleteToken(ctx context.Context) error {
	return b.store.Delete(ctx, tokenKey)
}

// ValidateToken checks a token against the API without keeping a session.
func (b *Bot) ValidateToken(ctx context.Context, token string) error {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if _, err := s.User("@me", discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return nil
}

// Connect builds a fresh session from the stored token and verifies the
// credentials. The gateway is not opened until Run.
func (b *Bot) Connect(ctx context.Context) error {
	b.connectAttempts.Add(1)

	token, ok, err := b.store.Get(ctx, tokenKey)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTokenNotFound
	}

	s, err := discordgo.New("Bot " + string(token))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages

	if _, err := s.User("@me", discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	b.mu.Lock()
	b.session = s
	b.mu.Unlock()
	return nil
}

// Run opens the gateway, registers the command surface, starts the cleanup
// scheduler against this bot, and blocks until ctx is canceled.
func (b *Bot) Run(ctx context.Context) error {
	s := b.current()
	if s == nil {
		return errors.New("discord: Run before Connect")
	}

	s.AddHandler(b.handleInteraction)
	if err := s.Open(); err != nil {
		return fmt.Errorf("discord: open gateway: %w", err)
	}
	defer s.Close()

	if err := b.registerCommands(s); err != nil {
		b.log.Error("registering commands failed", logx.Err(err))
	}
	if err := b.manager.Start(b); err != nil {
		return err
	}

	b.log.Info("gateway session running",
		logx.String("user", s.State.User.Username),
	)
	<-ctx.Done()
	return ctx.Err()
}

// Uptime reports how long the bot process has been up.
func (b *Bot) Uptime() time.Duration {
	return time.Since(b.startTime)
}

// ConnectAttempts reports how many times a session has been dialed.
func (b *Bot) ConnectAttempts() uint64 {
	return b.connectAttempts.Load()
}

func (b *Bot) current() *discordgo.Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.session
}
