package main

import (
	"context"
	"fmt"
	"os"

	"github.com/medrelay/safety-service/internal/safety/audit"
	"github.com/medrelay/safety-service/internal/safety/repository"
	"github.com/medrelay/safety-service/pkg/config"
	"github.com/medrelay/safety-service/pkg/database"
	"github.com/medrelay/safety-service/pkg/logger"
	"github.com/medrelay/safety-service/pkg/messaging"
)

// auditverify replays every clinic's audit hash chain and reports the first
// broken event. Intended to run out-of-band (cron or operator-invoked);
// a broken chain is reported and forwarded, never repaired.
func main() {
	cfg, err := config.LoadWithValidation("auditverify")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("auditverify", cfg.Service.Environment)
	log.Info().Msg("starting audit chain verification")

	db, err := database.New(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	store := repository.NewAuditRepository(db)
	auditLog := audit.NewLogger(store, log)

	var forwarder *audit.SIEMForwarder
	if cfg.Safety.EnableForwarding {
		rmq, err := messaging.New(&cfg.RabbitMQ, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		defer rmq.Close()

		publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeSafetyAudit, "auditverify", log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create publisher")
		}
		forwarder = audit.NewSIEMForwarder(publisher, log)
	}

	ctx := context.Background()

	clinics, err := store.Clinics(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to list clinics")
	}
	if len(clinics) == 0 {
		log.Info().Msg("no audit events to verify")
		return
	}

	broken := 0
	for _, clinicID := range clinics {
		result, err := auditLog.VerifyChainIntegrity(ctx, clinicID)
		if err != nil {
			log.Error().Err(err).Str("clinic_id", clinicID).Msg("verification failed")
			broken++
			continue
		}

		if result.Valid {
			log.Info().
				Str("clinic_id", clinicID).
				Int("events_checked", result.EventsChecked).
				Msg("chain intact")
		} else {
			log.Error().
				Str("clinic_id", clinicID).
				Int("events_checked", result.EventsChecked).
				Int("first_break", result.FirstBreak).
				Str("broken_event_id", result.BrokenEventID).
				Msg("chain compromised")
			broken++
		}

		if forwarder != nil {
			if err := forwarder.ForwardChainResult(ctx, result); err != nil {
				log.Warn().Err(err).Str("clinic_id", clinicID).Msg("failed to forward result")
			}
		}
	}

	if broken > 0 {
		log.Error().Int("clinics_broken", broken).Int("clinics_checked", len(clinics)).Msg("verification finished with failures")
		os.Exit(1)
	}
	log.Info().Int("clinics_checked", len(clinics)).Msg("verification finished")
}
