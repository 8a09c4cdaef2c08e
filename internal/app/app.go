// Package app assembles the bot: config, logging, storage, the cleanup
// scheduler, and the supervised gateway session.
package app

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"eule/internal/cleaner"
	"eule/internal/config"
	"eule/internal/connection"
	"eule/internal/discord"
	"eule/internal/store"
	"eule/pkg/logx"
)

// passphraseEnv names the variable holding the at-rest encryption passphrase.
// When unset, sensitive values are stored unencrypted.
const passphraseEnv = "EULE_PASSPHRASE"

type App struct {
	log  logx.Logger
	logs *logx.Service

	cfgMgr  *config.Manager
	store   *store.Store
	manager *cleaner.Manager
	bot     *discord.Bot
	sup     *connection.Supervisor

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds the whole application from the config file at cfgPath.
func New(cfgPath string) (*App, error) {
	cfgMgr := config.NewManager(cfgPath)
	cfg, err := cfgMgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	logs, log := logx.New(cfg.LogxConfig())
	cfgMgr.SetLogger(log.With(logx.String("svc", "config")))

	st, err := store.Open(cfg.StoragePath(), log.With(logx.String("svc", "store")))
	if err != nil {
		logs.Close()
		return nil, err
	}
	if pass := os.Getenv(passphraseEnv); pass != "" {
		if err := st.InitializeEncryption(pass); err != nil {
			st.Close()
			logs.Close()
			return nil, err
		}
	} else {
		log.Warn("no passphrase set, storing secrets unencrypted",
			logx.String("env", passphraseEnv),
		)
	}

	cleanerCfg, err := cfg.CleanerConfig()
	if err != nil {
		st.Close()
		logs.Close()
		return nil, err
	}
	mgr := cleaner.NewManager(cleanerCfg, st, log.With(logx.String("svc", "cleaner")))
	if err := mgr.Load(context.Background()); err != nil {
		st.Close()
		logs.Close()
		return nil, err
	}

	bot := discord.NewBot(st, mgr, log.With(logx.String("svc", "discord")))

	connCfg, err := cfg.ConnectionConfig()
	if err != nil {
		st.Close()
		logs.Close()
		return nil, err
	}
	sup := connection.New(connCfg, bot, log.With(logx.String("svc", "connection")))

	return &App{
		log:     log,
		logs:    logs,
		cfgMgr:  cfgMgr,
		store:   st,
		manager: mgr,
		bot:     bot,
		sup:     sup,
	}, nil
}

// Start bootstraps the token if needed, then brings up the supervised
// session and the config watcher. It returns once everything is running.
func (a *App) Start(ctx context.Context) error {
	if err := a.bot.EnsureToken(ctx, promptToken); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.sup.Run(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Error("supervisor exited", logx.Err(err))
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgMgr.Watch(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.watchConfigUpdates(runCtx)
	}()

	a.log.Info("eule started")
	return nil
}

// watchConfigUpdates applies reloadable settings from published configs.
// Only the logging section takes effect at runtime; the rest needs a restart.
func (a *App) watchConfigUpdates(ctx context.Context) {
	ch := a.cfgMgr.Subscribe(1)
	defer a.cfgMgr.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok {
				return
			}
			a.logs.Apply(cfg.LogxConfig())
			a.log.Info("logging settings applied")
		}
	}
}

// Stop shuts everything down in dependency order and waits for it.
func (a *App) Stop(ctx context.Context) {
	select {
	case a.sup.Commands() <- connection.CommandShutdown:
	default:
	}
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	a.manager.Shutdown(ctx)
	if err := a.store.Close(); err != nil {
		a.log.Error("closing store failed", logx.Err(err))
	}
	a.log.Info("eule stopped")
	a.logs.Close()
}

// DeleteToken removes the stored credentials, for the delete-token command.
func (a *App) DeleteToken(ctx context.Context) error {
	return a.bot.DeleteToken(ctx)
}

// promptToken reads a token from stdin on first run.
func promptToken() (string, error) {
	fmt.Fprint(os.Stderr, "Discord bot token: ")
	r := bufio.NewReader(os.Stdin)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
