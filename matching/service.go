// Package matching is the match-and-messaging core: the swipe engine, the
// two-step match state machine, chat delivery and notification dispatch on
// top of a store.Store and a realtime.Registry.
package matching

import (
	"golang.org/x/crypto/bcrypt"

	"gitea.kood.tech/petrkubec/purpose-match/backend/auth"
	"gitea.kood.tech/petrkubec/purpose-match/backend/logging"
	"gitea.kood.tech/petrkubec/purpose-match/backend/metrics"
	"gitea.kood.tech/petrkubec/purpose-match/backend/realtime"
	"gitea.kood.tech/petrkubec/purpose-match/backend/store"
)

// Service is safe for concurrent use. Every operation validates its input
// before touching the store.
type Service struct {
	store    store.Store
	registry *realtime.Registry
	tokens   *auth.Tokens
	log      logging.Logger
	metrics  *metrics.Metrics
	notifier *Notifier

	hashCost int
}

func New(st store.Store, registry *realtime.Registry, tokens *auth.Tokens, log logging.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:    st,
		registry: registry,
		tokens:   tokens,
		log:      log,
		metrics:  m,
		notifier: NewNotifier(registry, log, m),
		hashCost: bcrypt.DefaultCost,
	}
}

// WithHashCost overrides the bcrypt cost; tests use bcrypt.MinCost.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

func (s *Service) Store() store.Store { return s.store }

func (s *Service) Registry() *realtime.Registry { return s.registry }

func (s *Service) Tokens() *auth.Tokens { return s.tokens }
