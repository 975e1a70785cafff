package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/config"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/websocket"
)

type mockQuestionPool struct {
	addFn     func(ctx context.Context, q domain.Question) (int64, error)
	getFn     func(ctx context.Context, roundID, questionID string) (*domain.Question, error)
	updateFn  func(ctx context.Context, roundID, questionID, text string) error
	listFn    func(ctx context.Context, roundID string) ([]domain.Question, error)
	consumeFn func(ctx context.Context, roundID, questionID string) (*domain.Question, int64, error)
}

func (m *mockQuestionPool) Add(ctx context.Context, q domain.Question) (int64, error) {
	if m.addFn != nil {
		return m.addFn(ctx, q)
	}
	return 0, fmt.Errorf("not implemented")
}

func (m *mockQuestionPool) Get(ctx context.Context, roundID, questionID string) (*domain.Question, error) {
	if m.getFn != nil {
		return m.getFn(ctx, roundID, questionID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockQuestionPool) Update(ctx context.Context, roundID, questionID, text string) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, roundID, questionID, text)
	}
	return fmt.Errorf("not implemented")
}

func (m *mockQuestionPool) List(ctx context.Context, roundID string) ([]domain.Question, error) {
	if m.listFn != nil {
		return m.listFn(ctx, roundID)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockQuestionPool) Sample(ctx context.Context, roundID string, k int) ([]string, error) {
	return nil, fmt.Errorf("not implemented")
}

func (m *mockQuestionPool) Consume(ctx context.Context, roundID, questionID string) (*domain.Question, int64, error) {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, roundID, questionID)
	}
	return nil, 0, fmt.Errorf("not implemented")
}

func (m *mockQuestionPool) DeleteAll(ctx context.Context, roundID string) (int, error) {
	return 0, fmt.Errorf("not implemented")
}

func (m *mockQuestionPool) CountByRound(ctx context.Context) (map[string]int64, error) {
	return nil, fmt.Errorf("not implemented")
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:              "test",
		Port:                "0",
		LogLevel:            "error",
		LogFormat:           "text",
		MaxConnections:      10,
		MaxConnectionsPerIP: 5,
		ConnectionsPerSec:   100,
		ConnectionBurst:     100,
	}
}

func newTestServer(t *testing.T, pool domain.QuestionPool) *Server {
	t.Helper()
	hub := websocket.NewHub()
	t.Cleanup(hub.Stop)
	return NewServer(testConfig(), nil, pool, hub, nil)
}

func doRequest(srv *Server, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestCreateQuestion(t *testing.T) {
	var added domain.Question
	pool := &mockQuestionPool{
		addFn: func(_ context.Context, q domain.Question) (int64, error) {
			added = q
			return 4, nil
		},
	}
	srv := newTestServer(t, pool)

	rec := doRequest(srv, http.MethodPost, "/api/rounds/round-1/questions", `{"text":"who?","authorID":"conn-9"}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "round-1", added.RoundID)
	assert.Equal(t, "who?", added.Text)
	assert.Equal(t, "conn-9", added.AuthorID)
	assert.NotEmpty(t, added.ID)

	var resp struct {
		Question         questionResponse `json:"question"`
		PendingQuestions int64            `json:"pendingQuestions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, added.ID, resp.Question.QuestionID)
	assert.Equal(t, int64(4), resp.PendingQuestions)
}

func TestCreateQuestionRequiresText(t *testing.T) {
	srv := newTestServer(t, &mockQuestionPool{})

	rec := doRequest(srv, http.MethodPost, "/api/rounds/round-1/questions", `{"authorID":"x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListQuestions(t *testing.T) {
	pool := &mockQuestionPool{
		listFn: func(_ context.Context, roundID string) ([]domain.Question, error) {
			return []domain.Question{
				{RoundID: roundID, ID: "q1", Text: "a"},
				{RoundID: roundID, ID: "q2", Text: "b"},
			}, nil
		},
	}
	srv := newTestServer(t, pool)

	rec := doRequest(srv, http.MethodGet, "/api/rounds/round-1/questions", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp []questionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "q1", resp[0].QuestionID)
}

func TestGetQuestionNotFound(t *testing.T) {
	pool := &mockQuestionPool{
		getFn: func(_ context.Context, _, _ string) (*domain.Question, error) {
			return nil, domain.ErrQuestionNotFound
		},
	}
	srv := newTestServer(t, pool)

	rec := doRequest(srv, http.MethodGet, "/api/rounds/round-1/questions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateQuestion(t *testing.T) {
	var updatedText string
	pool := &mockQuestionPool{
		updateFn: func(_ context.Context, _, questionID, text string) error {
			assert.Equal(t, "q1", questionID)
			updatedText = text
			return nil
		},
	}
	srv := newTestServer(t, pool)

	rec := doRequest(srv, http.MethodPut, "/api/rounds/round-1/questions/q1", `{"text":"edited"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "edited", updatedText)
}

func TestDeleteQuestionConsumes(t *testing.T) {
	pool := &mockQuestionPool{
		consumeFn: func(_ context.Context, roundID, questionID string) (*domain.Question, int64, error) {
			return &domain.Question{RoundID: roundID, ID: questionID, Text: "gone"}, 1, nil
		},
	}
	srv := newTestServer(t, pool)

	rec := doRequest(srv, http.MethodDelete, "/api/rounds/round-1/questions/q1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Question         questionResponse `json:"question"`
		PendingQuestions int64            `json:"pendingQuestions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "gone", resp.Question.Text)
	assert.Equal(t, int64(1), resp.PendingQuestions)
}

func TestDeleteConsumedQuestionIs404(t *testing.T) {
	pool := &mockQuestionPool{
		consumeFn: func(_ context.Context, _, _ string) (*domain.Question, int64, error) {
			return nil, 0, domain.ErrQuestionNotFound
		},
	}
	srv := newTestServer(t, pool)

	rec := doRequest(srv, http.MethodDelete, "/api/rounds/round-1/questions/q1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found", resp["type"])
}
