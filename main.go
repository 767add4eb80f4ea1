package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
	_ "github.com/mattn/go-sqlite3"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger := setupLogger(cfg.Env, cfg.LogPath)

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal(err)
	}
	logger.Info("authorized", slog.String("account", api.Self.UserName))

	// Busy timeout covers concurrent receipt writes from the broadcast pool.
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	repo := NewSQLiteRepository(db)
	if err := repo.CreateTables(); err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport := newBotTransport(api)
	dispatcher := NewDispatcher(cfg.BroadcastWorkers, cfg.BroadcastDelay, logger)

	bot := &Bot{
		api:      api,
		cfg:      cfg,
		repo:     repo,
		dialogs:  NewDialogManager(cfg.SessionTTL),
		orch:     NewOrchestrator(repo, transport, dispatcher, logger),
		verifier: NewVerifier(repo, logger),
		scanner:  NewQRScanner(logger),
		log:      logger,
		ctx:      ctx,
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates, err := api.GetUpdatesChan(u)
	if err != nil {
		log.Fatal(err)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update := <-updates:
			bot.HandleUpdate(update)
		}
	}
}
