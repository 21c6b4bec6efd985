package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bsudfrance/bsf-server/internal/api"
	"github.com/bsudfrance/bsf-server/internal/app"
	"github.com/bsudfrance/bsf-server/internal/app/maintenance"
	iauth "github.com/bsudfrance/bsf-server/internal/auth"
	"github.com/bsudfrance/bsf-server/internal/database"
	"github.com/bsudfrance/bsf-server/internal/middleware"
	"github.com/bsudfrance/bsf-server/internal/models"
	"github.com/bsudfrance/bsf-server/internal/services"
	"github.com/bsudfrance/bsf-server/pkg/crypto"
	"github.com/bsudfrance/bsf-server/pkg/logger"
	"github.com/bsudfrance/bsf-server/pkg/mail"
)

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Sessions *iauth.SessionService
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine
}

// bootstrapRuntime initialises the database, services, background jobs, and
// the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	mailer, err := mail.NewSMTPMailer(mail.SMTPSettings{
		Enabled:  cfg.Email.SMTP.Enabled,
		Host:     cfg.Email.SMTP.Host,
		Port:     cfg.Email.SMTP.Port,
		Username: cfg.Email.SMTP.Username,
		Password: cfg.Email.SMTP.Password,
		From:     cfg.Email.SMTP.From,
		UseTLS:   cfg.Email.SMTP.UseTLS,
		Timeout:  cfg.Email.SMTP.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise mailer: %w", err)
	}

	stack.Sessions, err = iauth.NewSessionService(stack.DB, iauth.SessionConfig{
		TTL:         cfg.Auth.Session.TTL,
		RotateAfter: cfg.Auth.Session.RotateAfter,
		IdleRotate:  cfg.Auth.Session.IdleRotate,
		TokenLength: cfg.Auth.Session.TokenLength,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise session service: %w", err)
	}

	audit := services.NewAuditService(stack.DB)

	users, err := services.NewUserService(stack.DB, audit,
		services.WithLockoutPolicy(cfg.Auth.Lockout.Threshold, cfg.Auth.Lockout.Duration),
		services.WithSessionRevoker(stack.Sessions),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise user service: %w", err)
	}

	members, err := services.NewMemberService(stack.DB, audit)
	if err != nil {
		return nil, fmt.Errorf("initialise member service: %w", err)
	}

	invitations, err := services.NewInvitationService(stack.DB, audit,
		services.WithInvitationTTL(cfg.Invitations.TTL),
		services.WithInvitationMailer(mailer, cfg.Server.BaseURL),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise invitation service: %w", err)
	}

	events, err := services.NewEventService(stack.DB, audit,
		services.WithEventMailer(mailer),
		services.WithSelfInviteOnCreate(cfg.Events.SelfInviteOnCreate),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise event service: %w", err)
	}

	recommendations, err := services.NewRecommendationService(stack.DB, audit,
		services.WithRecommendationMailer(mailer),
	)
	if err != nil {
		return nil, fmt.Errorf("initialise recommendation service: %w", err)
	}

	if err := seedSuperAdmin(ctx, stack.DB, cfg.Bootstrap, log); err != nil {
		return nil, err
	}

	if cfg.Maintenance.Enabled {
		stack.Cleaner = maintenance.NewCleaner(stack.Sessions, invitations,
			maintenance.WithSessionSchedule(cfg.Maintenance.SessionSchedule),
			maintenance.WithInvitationSchedule(cfg.Maintenance.InvitationSchedule),
			maintenance.WithSessionRetention(daysToDuration(cfg.Maintenance.SessionRetentionDays)),
			maintenance.WithInvitationRetention(daysToDuration(cfg.Invitations.RetentionDays)),
		)
		if err := stack.Cleaner.Start(); err != nil {
			return nil, fmt.Errorf("start maintenance jobs: %w", err)
		}
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:              stack.DB,
		Config:          cfg,
		Sessions:        stack.Sessions,
		Users:           users,
		Members:         members,
		Invitations:     invitations,
		Events:          events,
		Recommendations: recommendations,
		Audit:           audit,
		RateStore:       middleware.NewMemoryRateStore(),
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Cleaner != nil {
		if stopCtx := s.Cleaner.Stop(); stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

// seedSuperAdmin creates the first SUPER_ADMIN account on an empty user table
// so a fresh install can issue invitations. No-op once any user exists.
func seedSuperAdmin(ctx context.Context, db *gorm.DB, cfg app.BootstrapConfig, log *zap.Logger) error {
	var count int64
	if err := db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	email := strings.ToLower(strings.TrimSpace(cfg.AdminEmail))
	if email == "" {
		log.Warn("no users exist and bootstrap.admin_email is unset; skipping initial admin seeding")
		return nil
	}

	password := cfg.AdminPassword
	generated := false
	if password == "" {
		token, err := crypto.GenerateToken(12)
		if err != nil {
			return fmt.Errorf("generate bootstrap password: %w", err)
		}
		password = token
		generated = true
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash bootstrap password: %w", err)
	}

	user := &models.User{
		AuthEmail:    email,
		Role:         models.RoleSuperAdmin,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	if generated {
		// Printed once on first boot only; change it immediately after login.
		log.Warn("seeded initial SUPER_ADMIN with generated password",
			zap.String("email", email),
			zap.String("password", password),
		)
	} else {
		log.Info("seeded initial SUPER_ADMIN", zap.String("email", email))
	}
	return nil
}

func daysToDuration(days int) time.Duration {
	return time.Duration(days) * 24 * time.Hour
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.DatabaseSettings()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
