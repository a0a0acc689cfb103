// Package remotetest поднимает in-process двойник облачного сервиса синхронизации для тестов.
package remotetest

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"golang.org/x/exp/slog"

	domain "bistrosync/internal/domain/sync"
)

// Server тестовый сервис синхронизации. Ответы задаются тестом, запросы записываются.
type Server struct {
	*httptest.Server

	api huma.API
	now func() time.Time

	mu             sync.Mutex
	mode           domain.Mode
	pages          []domain.PullResponse
	conflicts      []domain.Conflict
	pushConflicts  []domain.Conflict
	failures       map[string]int
	pushes         []domain.PushRequest
	pulls          []domain.PullRequest
	resolutions    []domain.ResolveConflictRequest
	authorizations []string
}

// New запускает сервер; он закрывается вместе с тестом
func New(tb interface{ Cleanup(func()) }) *Server {
	s := &Server{
		now:      time.Now,
		mode:     domain.ModeHybrid,
		failures: map[string]int{},
	}

	mux := chi.NewMux()
	s.api = humachi.New(mux, huma.DefaultConfig("BistroSync test API", "1.0.0"))
	s.api.UseMiddleware(requestLogger(slog.Default()), s.recordAuth, s.injectFailures)

	huma.Register(s.api, pushOp(), s.push)
	huma.Register(s.api, pullOp(), s.pull)
	huma.Register(s.api, statusOp(), s.status)
	huma.Register(s.api, conflictsOp(), s.listConflicts)
	huma.Register(s.api, resolveOp(), s.resolve)

	s.Server = httptest.NewServer(mux)
	tb.Cleanup(s.Close)
	return s
}

// BaseURL адрес API с префиксом
func (s *Server) BaseURL() string {
	return s.URL + "/api"
}

// QueuePull ставит страницу в очередь ответов pull; пустая очередь отдает пустую страницу
func (s *Server) QueuePull(pages ...domain.PullResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, pages...)
}

// SetConflicts задает список, который отдает GET /sync/conflicts
func (s *Server) SetConflicts(conflicts ...domain.Conflict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts = append([]domain.Conflict{}, conflicts...)
}

// SetPushConflicts задает конфликты, которые вернет следующий push
func (s *Server) SetPushConflicts(conflicts ...domain.Conflict) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushConflicts = append([]domain.Conflict{}, conflicts...)
}

// Fail заставляет операцию отвечать кодом code; 0 снимает отказ
func (s *Server) Fail(operationID string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if code == 0 {
		delete(s.failures, operationID)
		return
	}
	s.failures[operationID] = code
}

// SetMode задает режим в ответе status
func (s *Server) SetMode(mode domain.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

// Pushes принятые push-запросы
func (s *Server) Pushes() []domain.PushRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PushRequest{}, s.pushes...)
}

// Pulls принятые pull-запросы
func (s *Server) Pulls() []domain.PullRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PullRequest{}, s.pulls...)
}

// Resolutions принятые запросы на разрешение конфликтов
func (s *Server) Resolutions() []domain.ResolveConflictRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ResolveConflictRequest{}, s.resolutions...)
}

// Authorizations значения заголовка Authorization по порядку запросов
func (s *Server) Authorizations() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.authorizations...)
}

func (s *Server) recordAuth(ctx huma.Context, next func(huma.Context)) {
	s.mu.Lock()
	s.authorizations = append(s.authorizations, ctx.Header("Authorization"))
	s.mu.Unlock()
	next(ctx)
}

func (s *Server) injectFailures(ctx huma.Context, next func(huma.Context)) {
	s.mu.Lock()
	code := s.failures[ctx.Operation().OperationID]
	s.mu.Unlock()

	if code != 0 {
		_ = huma.WriteErr(s.api, ctx, code, "injected failure")
		return
	}
	next(ctx)
}

func (s *Server) timestamp() string {
	return domain.FormatTimestamp(s.now())
}

func (s *Server) push(_ context.Context, input *pushInput) (*pushOutput, error) {
	var req domain.PushRequest
	if err := json.Unmarshal(input.RawBody, &req); err != nil {
		return nil, huma.Error400BadRequest("invalid push body", err)
	}
	if req.TenantID == "" || req.DeviceID == "" {
		return nil, huma.Error400BadRequest("tenantId and deviceId are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pushes = append(s.pushes, req)
	conflicts := s.pushConflicts
	s.pushConflicts = nil
	if conflicts == nil {
		conflicts = []domain.Conflict{}
	}

	return &pushOutput{Body: domain.PushResponse{
		Success:   true,
		Conflicts: conflicts,
		Accepted:  len(req.Changes) - len(conflicts),
		Rejected:  len(conflicts),
		SyncedAt:  s.timestamp(),
	}}, nil
}

func (s *Server) pull(_ context.Context, input *pullInput) (*pullOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pulls = append(s.pulls, domain.PullRequest{
		Entities: domain.ParseEntities(input.Entities),
		Cursor:   input.Cursor,
		Limit:    input.Limit,
	})

	if len(s.pages) == 0 {
		return &pullOutput{Body: domain.PullResponse{
			Changes:   []domain.Changeset{},
			Deletions: []domain.Deletion{},
			SyncedAt:  s.timestamp(),
		}}, nil
	}

	page := s.pages[0]
	s.pages = s.pages[1:]
	if page.Changes == nil {
		page.Changes = []domain.Changeset{}
	}
	if page.Deletions == nil {
		page.Deletions = []domain.Deletion{}
	}
	return &pullOutput{Body: page}, nil
}

func (s *Server) status(_ context.Context, _ *statusInput) (*statusOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return &statusOutput{Body: domain.StatusResponse{
		Online:     true,
		Mode:       s.mode,
		ServerTime: s.timestamp(),
	}}, nil
}

func (s *Server) listConflicts(_ context.Context, _ *conflictsInput) (*conflictsOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.Conflict, 0, len(s.conflicts))
	for _, c := range s.conflicts {
		if !c.Resolved {
			out = append(out, c)
		}
	}
	return &conflictsOutput{Body: out}, nil
}

func (s *Server) resolve(_ context.Context, input *resolveInput) (*resolveOutput, error) {
	var req domain.ResolveConflictRequest
	if err := json.Unmarshal(input.RawBody, &req); err != nil {
		return nil, huma.Error400BadRequest("invalid resolve body", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.resolutions = append(s.resolutions, req)

	for i := range s.conflicts {
		if s.conflicts[i].ID == req.ConflictID && !s.conflicts[i].Resolved {
			s.conflicts[i].Resolved = true
			return &resolveOutput{Body: domain.ResolveConflictResponse{
				Success:    true,
				ConflictID: req.ConflictID,
				SyncedAt:   s.timestamp(),
			}}, nil
		}
	}
	return nil, huma.Error404NotFound(domain.ErrConflictNotFound.Error())
}
