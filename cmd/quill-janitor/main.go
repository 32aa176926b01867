package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/quillnote/quill/pkg/audit"
	"github.com/quillnote/quill/pkg/auth"
)

var (
	dbURL          = flag.String("db-url", getEnv("QUILL_POSTGRES_URL", "postgres://localhost/quill?sslmode=disable"), "PostgreSQL connection URL")
	purgeSchedule  = flag.String("purge-schedule", getEnv("QUILL_TOKEN_PURGE_SCHEDULE", "@hourly"), "Cron schedule for expired token purge")
	auditSchedule  = flag.String("audit-schedule", "30 0 * * *", "Cron schedule for audit retention purge (default: 00:30 UTC)")
	auditRetention = flag.Duration("audit-retention", 0, "Delete audit entries older than this (0 disables the purge)")
	runOnce        = flag.Bool("run-once", false, "Run all cleanup jobs once and exit")
)

func main() {
	flag.Parse()

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	authStore := auth.NewStore(db)
	recorder, err := audit.NewDBRecorder(db)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize audit recorder")
	}

	if *runOnce {
		if err := purgeTokens(authStore); err != nil {
			logrus.WithError(err).Fatal("Token purge failed")
		}
		if *auditRetention > 0 {
			if err := purgeAudit(recorder, *auditRetention); err != nil {
				logrus.WithError(err).Fatal("Audit purge failed")
			}
		}
		logrus.Info("Cleanup completed successfully")
		return
	}

	c := cron.New()

	_, err = c.AddFunc(*purgeSchedule, func() {
		if err := purgeTokens(authStore); err != nil {
			logrus.WithError(err).Error("Token purge failed")
		}
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to schedule token purge")
	}

	if *auditRetention > 0 {
		_, err = c.AddFunc(*auditSchedule, func() {
			if err := purgeAudit(recorder, *auditRetention); err != nil {
				logrus.WithError(err).Error("Audit purge failed")
			}
		})
		if err != nil {
			logrus.WithError(err).Fatal("Failed to schedule audit purge")
		}
	}

	c.Start()
	logrus.Info("Quill janitor started")
	logrus.WithField("schedule", *purgeSchedule).Info("Token purge scheduled")
	if *auditRetention > 0 {
		logrus.WithFields(logrus.Fields{"schedule": *auditSchedule, "retention": auditRetention.String()}).Info("Audit purge scheduled")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logrus.Info("Shutting down gracefully")

	ctx := c.Stop()
	<-ctx.Done()

	logrus.Info("Janitor stopped")
}

func purgeTokens(store *auth.Store) error {
	ctx := context.Background()
	purged, err := store.PurgeExpiredTokens(ctx, time.Now().UTC())
	if err != nil {
		return err
	}
	logrus.WithField("purged", purged).Info("Purged expired tokens")
	return nil
}

func purgeAudit(recorder *audit.DBRecorder, retention time.Duration) error {
	ctx := context.Background()
	cutoff := time.Now().UTC().Add(-retention)
	purged, err := recorder.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"purged": purged, "cutoff": cutoff.Format(time.RFC3339)}).Info("Purged old audit entries")
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
