// Package remote реализует HTTP-клиент протокола синхронизации с облачным сервисом.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/exp/slog"

	domain "bistrosync/internal/domain/sync"
)

// ErrUnavailable сервис недоступен: сетевая ошибка или таймаут
var ErrUnavailable = errors.New("sync server unavailable")

// StatusError ответ сервиса с кодом >= 400
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.Code)
	}
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Message)
}

// TokenSource источник bearer-токена текущей сессии
type TokenSource interface {
	Token() string
}

// Client клиент протокола синхронизации
type Client struct {
	client    *http.Client
	log       *slog.Logger
	baseURL   string
	tokens    TokenSource
	userAgent string
}

// New создает клиента. baseURL включает схему, адрес и префикс API.
func New(baseURL string, timeout time.Duration, tokens TokenSource, log *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConnsPerHost: 10,
			},
		},
		log:       log.With(slog.String("component", "sync_client")),
		baseURL:   baseURL,
		tokens:    tokens,
		userAgent: "BistroSync-Client/1.0",
	}
}

// Push отправляет пакет локальных изменений
func (c *Client) Push(ctx context.Context, req domain.PushRequest) (*domain.PushResponse, error) {
	if req.Changes == nil {
		req.Changes = []domain.Changeset{}
	}

	var resp domain.PushResponse
	if err := c.do(ctx, http.MethodPost, "/sync/push", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("push: %w", err)
	}
	return &resp, nil
}

// Pull запрашивает одну страницу удаленных изменений после курсора
func (c *Client) Pull(ctx context.Context, req domain.PullRequest) (*domain.PullResponse, error) {
	q := url.Values{}
	q.Set("entities", domain.JoinEntities(req.Entities))
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}
	if req.Limit > 0 {
		q.Set("limit", strconv.Itoa(req.Limit))
	}

	var resp domain.PullResponse
	if err := c.do(ctx, http.MethodGet, "/sync/pull", q, nil, &resp); err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}
	return &resp, nil
}

// Status возвращает состояние сервиса
func (c *Client) Status(ctx context.Context) (*domain.StatusResponse, error) {
	var resp domain.StatusResponse
	if err := c.do(ctx, http.MethodGet, "/sync/status", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &resp, nil
}

// ListConflicts возвращает конфликты, которые сервис хранит для клиента
func (c *Client) ListConflicts(ctx context.Context) ([]domain.Conflict, error) {
	var resp []domain.Conflict
	if err := c.do(ctx, http.MethodGet, "/sync/conflicts", nil, nil, &resp); err != nil {
		return nil, fmt.Errorf("list conflicts: %w", err)
	}
	if resp == nil {
		resp = []domain.Conflict{}
	}
	return resp, nil
}

// ResolveConflict отправляет решение по конфликту
func (c *Client) ResolveConflict(ctx context.Context, req domain.ResolveConflictRequest) (*domain.ResolveConflictResponse, error) {
	var resp domain.ResolveConflictResponse
	if err := c.do(ctx, http.MethodPost, "/sync/resolve-conflict", nil, req, &resp); err != nil {
		return nil, fmt.Errorf("resolve conflict: %w", err)
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	c.log.Debug("Отправка запроса",
		"method", method,
		"url", req.URL.String(),
	)

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	return c.parseResponse(resp, out)
}

func (c *Client) parseResponse(resp *http.Response, out any) error {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return &StatusError{Code: resp.StatusCode, Message: errorMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorMessage достает текст ошибки из тела problem+json или возвращает тело как есть
func errorMessage(data []byte) string {
	var problem struct {
		Title   string `json:"title"`
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &problem); err == nil {
		switch {
		case problem.Detail != "":
			return problem.Detail
		case problem.Message != "":
			return problem.Message
		case problem.Title != "":
			return problem.Title
		}
	}
	msg := string(bytes.TrimSpace(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
