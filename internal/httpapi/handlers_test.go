package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/DoyleJ11/queue-draft-backend/internal/dispatch"
	"github.com/DoyleJ11/queue-draft-backend/internal/engine"
	"github.com/DoyleJ11/queue-draft-backend/internal/hub"
	"github.com/DoyleJ11/queue-draft-backend/internal/lobby"
	"github.com/DoyleJ11/queue-draft-backend/internal/recorder"
	"github.com/DoyleJ11/queue-draft-backend/internal/stats"
	"github.com/DoyleJ11/queue-draft-backend/internal/store"
	"github.com/DoyleJ11/queue-draft-backend/internal/store/memstore"
	"github.com/DoyleJ11/queue-draft-backend/internal/store/storetest"
	"github.com/DoyleJ11/queue-draft-backend/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type testEnv struct {
	srv   *httptest.Server
	store *memstore.Store
}

func newTestEnv(t *testing.T, ready ...Pinger) *testEnv {
	t.Helper()
	log := zaptest.NewLogger(t)
	s := memstore.New()
	q := stats.New(s, nil, log)
	rec := recorder.New(s, q, log)
	factory := func(ctx context.Context, id int) *lobby.Queue {
		return lobby.NewQueue(ctx, id, lobby.DefaultSettings(), lobby.Deps{Recorder: rec, Points: q, Logger: log})
	}
	h := hub.NewHub(context.Background(), factory, log)
	t.Cleanup(h.Shutdown)
	d := dispatch.New(h, dispatch.NewAdminSet([]string{"admin"}), log)
	srv := httptest.NewServer(SetupRoutes(New(h, d, q, log, ready...), nil))
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: s}
}

func (e *testEnv) do(t *testing.T, method, path, participant, body string) (*http.Response, []byte) {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	if participant != "" {
		req.Header.Set(HeaderParticipantID, participant)
		req.Header.Set(HeaderParticipantName, "name-"+participant)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decodeError(t *testing.T, data []byte) *types.ErrorBody {
	t.Helper()
	var er errorResponse
	require.NoError(t, json.Unmarshal(data, &er))
	require.NotNil(t, er.Error)
	return er.Error
}

func TestJoinAndQueueReads(t *testing.T) {
	e := newTestEnv(t)

	resp, data := e.do(t, http.MethodPost, "/queues/2/join", "u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))
	var snap lobby.Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, []engine.Participant{{ID: "u1", Name: "name-u1"}}, snap.Roster)

	resp, data = e.do(t, http.MethodPost, "/queues/2/join", "u1", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already_queued", decodeError(t, data).Code)

	resp, _ = e.do(t, http.MethodPost, "/queues/2/join", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	_, _ = e.do(t, http.MethodPost, "/queues/1/join", "u2", "")
	resp, data = e.do(t, http.MethodGet, "/queues", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []types.QueueSummary
	require.NoError(t, json.Unmarshal(data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, 1, list[0].Queue)
	assert.Equal(t, types.StatusWaiting, list[1].Status)
	assert.Equal(t, 1, list[1].Players)

	resp, _ = e.do(t, http.MethodGet, "/queues/2", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/queues/77", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/queues/abc", "", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestEventBodies(t *testing.T) {
	e := newTestEnv(t)

	resp, data := e.do(t, http.MethodPost, "/queues/1/votes", "u1", `{"session":"map","candidate":"Raid"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "wrong_phase", decodeError(t, data).Code)

	resp, _ = e.do(t, http.MethodPost, "/queues/1/votes", "u1", `{"session":"mvp","candidate":"x"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = e.do(t, http.MethodPost, "/queues/1/picks", "u1", `{"pool_index":`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestAdminOperations(t *testing.T) {
	e := newTestEnv(t)

	resp, data := e.do(t, http.MethodPost, "/queues/1/winner", "u1", `{"team":"1"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "not_authorized", decodeError(t, data).Code)

	resp, data = e.do(t, http.MethodPost, "/queues/1/winner", "admin", `{"team":"1"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "no_active_match", decodeError(t, data).Code)

	resp, _ = e.do(t, http.MethodPost, "/queues/1/reset", "admin", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatsReads(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	m := storetest.Match("cycle-http", 3, storetest.Players("h", 10), "Legacy")
	id, err := e.store.CreateMatch(ctx, m)
	require.NoError(t, err)
	require.NoError(t, e.store.ReportWinner(ctx, store.WinnerReport{MatchID: id, Winner: engine.TeamA, Deltas: storetest.Deltas(m, engine.TeamA)}))

	resp, data := e.do(t, http.MethodGet, "/leaderboard?limit=2", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var board []store.PlayerRecord
	require.NoError(t, json.Unmarshal(data, &board))
	require.Len(t, board, 2)
	assert.Equal(t, "h1", board[0].ID)

	resp, data = e.do(t, http.MethodGet, "/players/h2", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var prof stats.Profile
	require.NoError(t, json.Unmarshal(data, &prof))
	assert.Equal(t, 20, prof.Stats.Points)
	assert.Len(t, prof.Recent, 1)

	resp, data = e.do(t, http.MethodGet, "/players/ghost", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.Unmarshal(data, &prof))
	assert.False(t, prof.Stats.Persisted)

	resp, _ = e.do(t, http.MethodGet, "/players/h7/matches", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = e.do(t, http.MethodGet, "/queues/3/history", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var hist stats.QueueHistory
	require.NoError(t, json.Unmarshal(data, &hist))
	assert.Equal(t, 1, hist.TeamAWins)

	resp, _ = e.do(t, http.MethodGet, fmt.Sprintf("/matches/%d", id), "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/matches/999", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthAndMetrics(t *testing.T) {
	e := newTestEnv(t, pingFunc(func(context.Context) error { return nil }))
	resp, _ := e.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = e.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	_, _ = e.do(t, http.MethodPost, "/queues/1/join", "u1", "")
	resp, data := e.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(data), "queue_operations_total")

	down := newTestEnv(t, pingFunc(func(context.Context) error { return errors.New("db down") }))
	resp, _ = down.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{engine.ErrWrongPhase, http.StatusConflict},
		{engine.ErrQueueFull, http.StatusConflict},
		{fmt.Errorf("%w: x: %w", engine.ErrPersistence, errors.New("down")), http.StatusServiceUnavailable},
		{engine.ErrAlreadyResolved, http.StatusInternalServerError},
		{engine.ErrNotAuthorized, http.StatusForbidden},
		{dispatch.ErrInvalidMessage, http.StatusUnprocessableEntity},
		{store.ErrNotFound, http.StatusNotFound},
		{lobby.ErrClosed, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, StatusOf(tc.err), "StatusOf(%v)", tc.err)
	}
}
