package main

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"github.com/rs/zerolog"

	"github.com/ayurveda/clinic/internal/config"
	"github.com/ayurveda/clinic/internal/domain/feedback"
	"github.com/ayurveda/clinic/internal/domain/identity"
	"github.com/ayurveda/clinic/internal/domain/scheduling"
	"github.com/ayurveda/clinic/internal/platform/db"
	"github.com/ayurveda/clinic/internal/platform/docstore"
	"github.com/ayurveda/clinic/internal/platform/hipaa"
)

type transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// stores holds the repositories of the configured backend.
type stores struct {
	backend      string
	users        identity.Repository
	appointments scheduling.AppointmentRepository
	sessions     scheduling.SessionRepository
	feedback     feedback.Repository
	tx           transactor
	pinger       db.Pinger
	poolStats    func() *db.PoolStats

	// firebase is set for the firestore backend and whenever push is enabled.
	firebase *firebase.App
	closers  []func()
}

func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	st := &stores{backend: cfg.StoreBackend}

	enc, err := hipaa.NewFromConfig(cfg.HIPAAEncryptionKey, cfg.HIPAAKeyVersion, cfg.HIPAAPreviousKeys)
	if err != nil {
		return nil, err
	}
	if enc != nil {
		logger.Info().Int("key_version", cfg.HIPAAKeyVersion).Msg("PHI field encryption enabled")
	} else {
		logger.Warn().Msg("HIPAA_ENCRYPTION_KEY not set, PHI fields are stored in plaintext")
	}

	if cfg.StoreBackend == "firestore" || cfg.PushEnabled {
		app, err := docstore.NewApp(ctx, cfg.FirestoreProjectID, cfg.GoogleCredentials)
		if err != nil {
			return nil, err
		}
		st.firebase = app
	}

	switch cfg.StoreBackend {
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		st.closers = append(st.closers, pool.Close)
		logger.Info().Msg("connected to postgres")

		st.users = identity.NewRepoPG(pool, enc)
		st.appointments = scheduling.NewAppointmentRepoPG(pool, enc)
		st.sessions = scheduling.NewSessionRepoPG(pool, enc)
		st.feedback = feedback.NewRepoPG(pool)
		st.tx = db.NewTransactor(pool)
		st.pinger = pool
		st.poolStats = func() *db.PoolStats { return db.GetPoolStats(pool) }

	case "firestore":
		client, err := docstore.NewClient(ctx, st.firebase)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() {
			if err := client.Close(); err != nil {
				logger.Warn().Err(err).Msg("close firestore client")
			}
		})
		logger.Info().Str("project", cfg.FirestoreProjectID).Msg("connected to firestore")

		st.users = identity.NewRepoFirestore(client, enc)
		st.appointments = scheduling.NewAppointmentRepoFirestore(client, enc)
		st.sessions = scheduling.NewSessionRepoFirestore(client, enc)
		st.feedback = feedback.NewRepoFirestore(client)
		st.tx = docstore.NewTransactor(client)
		st.pinger = docstore.Pinger{Client: client}

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}

	return st, nil
}

func newIdentityService(st *stores, tokens identity.TokenIssuer) *identity.Service {
	return identity.NewService(st.users, st.tx, tokens)
}
