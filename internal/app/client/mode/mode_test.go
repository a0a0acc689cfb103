package mode

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slog"

	domain "bistrosync/internal/domain/sync"
)

type MockProber struct {
	mock.Mock
}

func (m *MockProber) Status(ctx context.Context) (*domain.StatusResponse, error) {
	args := m.Called(ctx)
	resp, _ := args.Get(0).(*domain.StatusResponse)
	return resp, args.Error(1)
}

type staticSession bool

func (s staticSession) HasSession() bool { return bool(s) }

var errOffline = errors.New("connection refused")

func online() *domain.StatusResponse {
	return &domain.StatusResponse{Online: true, Mode: domain.ModeHybrid}
}

func TestRefreshModes(t *testing.T) {
	tests := []struct {
		name    string
		resp    *domain.StatusResponse
		err     error
		session bool
		want    domain.Mode
	}{
		{name: "reachable with session", resp: online(), session: true, want: domain.ModeHybrid},
		{name: "reachable without session", resp: online(), want: domain.ModeCloud},
		{name: "unreachable", err: errOffline, session: true, want: domain.ModeLocal},
		{name: "server reports offline", resp: &domain.StatusResponse{}, session: true, want: domain.ModeLocal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prober := new(MockProber)
			prober.On("Status", mock.Anything).Return(tt.resp, tt.err)

			s := New(prober, staticSession(tt.session), time.Hour, slog.Default())
			assert.Equal(t, domain.ModeLocal, s.Mode())

			assert.Equal(t, tt.want, s.Refresh(context.Background()))
			assert.Equal(t, tt.want, s.Mode())
			prober.AssertExpectations(t)
		})
	}
}

func TestOnlineEventOnRecovery(t *testing.T) {
	ctx := context.Background()
	prober := new(MockProber)
	prober.On("Status", mock.Anything).Return(nil, errOffline).Once()
	prober.On("Status", mock.Anything).Return(online(), nil)

	s := New(prober, staticSession(true), time.Hour, slog.Default())
	events, unsubscribe := s.OnlineEvents()
	defer unsubscribe()

	require.Equal(t, domain.ModeLocal, s.Refresh(ctx))
	assert.Empty(t, events)

	require.Equal(t, domain.ModeHybrid, s.SetOnline(ctx, true))
	select {
	case <-events:
	default:
		t.Fatal("expected an online event")
	}

	// пока связь есть, событие не повторяется
	s.Refresh(ctx)
	assert.Empty(t, events)

	assert.Equal(t, domain.ModeLocal, s.SetOnline(ctx, false))
	s.SetOnline(ctx, true)
	assert.Len(t, events, 1)
}

func TestFirstProbeDoesNotPublish(t *testing.T) {
	prober := new(MockProber)
	prober.On("Status", mock.Anything).Return(online(), nil)

	s := New(prober, staticSession(true), time.Hour, slog.Default())
	events, unsubscribe := s.OnlineEvents()
	defer unsubscribe()

	s.Refresh(context.Background())
	assert.Empty(t, events)
}

func TestRunProbesUntilCancel(t *testing.T) {
	prober := new(MockProber)
	prober.On("Status", mock.Anything).Return(online(), nil)

	s := New(prober, staticSession(false), 10*time.Millisecond, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	assert.Eventually(t, func() bool { return s.Mode() == domain.ModeCloud }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
