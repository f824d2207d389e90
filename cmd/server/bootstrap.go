package main

import (
	"github.com/studyblocks/backend/internal/config"
	"github.com/studyblocks/backend/internal/handlers"
	"github.com/studyblocks/backend/internal/models"
	"github.com/studyblocks/backend/internal/services"
	"github.com/studyblocks/backend/internal/utils"
	"github.com/studyblocks/backend/pkg/logger"
)

// appServices holds all initialized services and handlers needed by the
// application.
type appServices struct {
	scanner      *services.ReminderScanner
	mirrorQueue  services.MirrorQueue
	mirrorWorker *services.MirrorWorker
	authHandler  *handlers.AuthHandler
	blockHandler *handlers.BlockHandler
	adminHandler *handlers.AdminHandler
}

// bootstrap initializes all application dependencies: database, services,
// the reminder engine. Nothing here starts as a module-load side effect;
// the engine is constructed and started explicitly.
func bootstrap(cfg *config.Config) *appServices {
	utils.SetJWTSecret(cfg.JWT.Secret)

	if err := models.InitDB(&cfg.Database); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	if err := models.AutoMigrate(); err != nil {
		logger.Fatalf("Failed to migrate database: %v", err)
	}

	// Mirror pipeline: REST client -> queue (inline or Redis) -> coordinator.
	var mirrorClient services.MirrorClient
	if cfg.Mirror.Enabled {
		mirrorClient = services.NewHTTPMirrorClient(&cfg.Mirror)
	}

	var mirrorQueue services.MirrorQueue
	var mirrorWorker *services.MirrorWorker
	if mirrorClient != nil {
		mirrorQueue = services.InitMirrorQueue(cfg, mirrorClient)
		if mirrorQueue.IsAsync() {
			mirrorWorker = services.NewMirrorWorker(&cfg.Redis, mirrorClient, cfg.Mirror.Timeout())
			if mirrorWorker != nil {
				mirrorWorker.Start()
			}
		}
	} else {
		logger.Info().Msg("mirror disabled, block changes stay in the primary store only")
	}
	coordinator := services.NewSyncCoordinator(mirrorQueue)

	userService := services.NewUserService(models.GetDB())
	blockService := services.NewBlockService(models.GetDB(), coordinator, cfg.Reminder.MinLead())
	lockService := services.NewLockService(models.GetDB())
	notifier := services.NewEmailNotifier(&cfg.SMTP)

	scanner := services.NewReminderScanner(
		blockService, lockService, userService, notifier, coordinator, &cfg.Reminder)
	if err := scanner.Start(); err != nil {
		logger.Fatalf("Failed to start reminder scanner: %v", err)
	}

	if err := userService.CreateAdminIfNotExists(); err != nil {
		logger.Warn().Err(err).Msg("Failed to create admin user")
	}

	return &appServices{
		scanner:      scanner,
		mirrorQueue:  mirrorQueue,
		mirrorWorker: mirrorWorker,
		authHandler:  handlers.NewAuthHandler(userService, &cfg.JWT),
		blockHandler: handlers.NewBlockHandler(blockService),
		adminHandler: handlers.NewAdminHandler(lockService, scanner),
	}
}

// shutdown gracefully stops the reminder engine and mirror pipeline.
// In-flight deliveries finish or time out on their own; any lock still
// held expires via TTL.
func (s *appServices) shutdown() {
	s.scanner.Stop()
	if s.mirrorWorker != nil {
		s.mirrorWorker.Stop()
	}
	if s.mirrorQueue != nil {
		s.mirrorQueue.Close()
	}
	logger.Info().Msg("All services stopped")
}
