// Package mode определяет режим работы кассы по доступности облака и наличию сессии.
package mode

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/exp/slog"

	domain "bistrosync/internal/domain/sync"
)

// DefaultInterval период проверки доступности облака
const DefaultInterval = 30 * time.Second

// Prober проверка доступности облачного сервиса
type Prober interface {
	Status(ctx context.Context) (*domain.StatusResponse, error)
}

// SessionSource наличие облачной сессии
type SessionSource interface {
	HasSession() bool
}

// Service отслеживает режим работы. Пока облако не проверено, режим local.
type Service struct {
	prober   Prober
	session  SessionSource
	interval time.Duration
	log      *slog.Logger

	mu          sync.Mutex
	mode        domain.Mode
	probed      bool
	subscribers map[int]chan struct{}
	nextSub     int
}

// New создает сервис режима
func New(prober Prober, session SessionSource, interval time.Duration, log *slog.Logger) *Service {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Service{
		prober:      prober,
		session:     session,
		interval:    interval,
		log:         log.With(slog.String("component", "mode")),
		mode:        domain.ModeLocal,
		subscribers: make(map[int]chan struct{}),
	}
}

// Mode текущий режим
func (s *Service) Mode() domain.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// OnlineEvents канал событий перехода offline -> online и функция отписки
func (s *Service) OnlineEvents() (<-chan struct{}, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan struct{}, 1)
	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[id]; ok {
			delete(s.subscribers, id)
			close(ch)
		}
	}
}

// Refresh проверяет облако и пересчитывает режим
func (s *Service) Refresh(ctx context.Context) domain.Mode {
	next := domain.ModeLocal

	resp, err := s.prober.Status(ctx)
	switch {
	case err != nil:
		if !errors.Is(err, context.Canceled) {
			s.log.Debug("Облако недоступно", "error", err)
		}
	case resp == nil || !resp.Online:
		s.log.Debug("Облако сообщает offline")
	case s.session.HasSession():
		next = domain.ModeHybrid
	default:
		next = domain.ModeCloud
	}

	s.set(next)
	return next
}

// SetOnline обработчик сетевых событий: потеря сети сразу переводит в local,
// появление сети запускает проверку облака
func (s *Service) SetOnline(ctx context.Context, online bool) domain.Mode {
	if !online {
		s.set(domain.ModeLocal)
		return domain.ModeLocal
	}
	return s.Refresh(ctx)
}

func (s *Service) set(next domain.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.mode
	wasProbed := s.probed
	s.mode = next
	s.probed = true

	if prev == next {
		return
	}
	s.log.Info("Режим работы изменен", "from", prev, "to", next)

	if wasProbed && prev == domain.ModeLocal {
		for _, ch := range s.subscribers {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

// Run проверяет облако сразу и затем периодически до отмены контекста
func (s *Service) Run(ctx context.Context) error {
	s.Refresh(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}
