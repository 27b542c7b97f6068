package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tide-labs/tide/internal/domain"
	"github.com/tide-labs/tide/internal/health"
	"github.com/tide-labs/tide/internal/infra/events"
)

// fakeTasks mimics the registry's lifecycle rules closely enough for the
// HTTP mapping.
type fakeTasks struct {
	mu    sync.Mutex
	tasks map[string]*domain.TaskInfo
}

func newFakeTasks() *fakeTasks {
	return &fakeTasks{tasks: make(map[string]*domain.TaskInfo)}
}

func (f *fakeTasks) Create(spec domain.TaskSpec) (domain.TaskInfo, error) {
	if err := spec.Validate(); err != nil {
		return domain.TaskInfo{}, err
	}
	if spec.WalletGroupID == "missing" {
		return domain.TaskInfo{}, fmt.Errorf("%w: missing", domain.ErrWalletGroupNotFound)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if spec.ID == "" {
		spec.ID = fmt.Sprintf("t%d", len(f.tasks)+1)
	}
	if _, ok := f.tasks[spec.ID]; ok {
		return domain.TaskInfo{}, domain.ErrTaskExists
	}
	info := &domain.TaskInfo{
		ID: spec.ID, WalletGroupID: spec.WalletGroupID, Chain: domain.ChainSolana,
		WorkersCnt: spec.WorkersCnt, State: domain.TaskCreated, TradeConfig: spec.TradeConfig,
		CreatedAt: time.Now(),
	}
	f.tasks[spec.ID] = info
	return *info, nil
}

func (f *fakeTasks) set(id string, fn func(*domain.TaskInfo) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, id)
	}
	return fn(t)
}

func (f *fakeTasks) Start(id string) error {
	return f.set(id, func(t *domain.TaskInfo) error {
		if t.State == domain.TaskStopping {
			return domain.ErrTaskStopping
		}
		t.State = domain.TaskRunning
		return nil
	})
}

func (f *fakeTasks) Stop(id string) error {
	return f.set(id, func(t *domain.TaskInfo) error {
		if t.State == domain.TaskRunning {
			t.State = domain.TaskStopped
		}
		return nil
	})
}

func (f *fakeTasks) Remove(id string) error {
	err := f.set(id, func(t *domain.TaskInfo) error {
		if t.State == domain.TaskRunning {
			return domain.ErrTaskRunning
		}
		return nil
	})
	if err == nil {
		f.mu.Lock()
		delete(f.tasks, id)
		f.mu.Unlock()
	}
	return err
}

func (f *fakeTasks) Get(id string) (domain.TaskInfo, error) {
	var out domain.TaskInfo
	err := f.set(id, func(t *domain.TaskInfo) error { out = *t; return nil })
	return out, err
}

func (f *fakeTasks) List() []domain.TaskInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.TaskInfo
	for _, t := range f.tasks {
		out = append(out, *t)
	}
	return out
}

type fakeWallets struct {
	mu     sync.Mutex
	groups map[string]domain.WalletGroup
}

func (f *fakeWallets) SaveWalletGroup(g domain.WalletGroup) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.groups[g.ID] = g
	return nil
}

func (f *fakeWallets) ListWalletGroups() ([]domain.WalletGroupSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.WalletGroupSummary
	for _, g := range f.groups {
		out = append(out, domain.WalletGroupSummary{ID: g.ID, Name: g.Name, Chain: g.Chain, Wallets: len(g.Keys)})
	}
	return out, nil
}

func (f *fakeWallets) DeleteWalletGroup(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.groups[id]; !ok {
		return domain.ErrWalletGroupNotFound
	}
	delete(f.groups, id)
	return nil
}

func parseTestKey(_ domain.Chain, s string) (domain.PrivateKey, error) {
	if !strings.HasPrefix(s, "key-") {
		return nil, errors.New("bad key encoding")
	}
	return domain.PrivateKey(s), nil
}

type testEnv struct {
	srv     *httptest.Server
	tasks   *fakeTasks
	wallets *fakeWallets
	hub     *events.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)

	tasks := newFakeTasks()
	hub := events.NewHub(events.Config{}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	wallets := &fakeWallets{groups: make(map[string]domain.WalletGroup)}
	s := NewServer(tasks, hub, logger)
	s.SetWallets(wallets, parseTestKey)
	s.EnableMetrics()

	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return &testEnv{srv: srv, tasks: tasks, wallets: wallets, hub: hub}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

const validSpec = `{
	"wallet_grp_id": "g1",
	"workers_cnt": 2,
	"token": {"chain": "Solana", "addr": "Mint111", "symbol": "BONK", "decimals": 5},
	"trade_mode": "Both",
	"percentage": [10, 50],
	"slippage": 100,
	"gas_price": 1000,
	"interval_secs": 30
}`

// ─── Task Lifecycle ─────────────────────────────────────────────────────────

func TestCreateTask(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/tasks", validSpec)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "t1", body["id"])
	assert.Equal(t, "Created", body["task_state"])
	assert.Equal(t, []any{float64(10), float64(50)}, body["percentage"])

	resp, body = env.do(t, http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["tasks"], 1)
}

func TestCreateTaskErrors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"invalid spec", `{"wallet_grp_id":"g1","workers_cnt":0,"trade_mode":"Both","token":{"addr":"x"}}`, http.StatusBadRequest},
		{"unknown group", strings.Replace(validSpec, `"g1"`, `"missing"`, 1), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, http.MethodPost, "/api/tasks", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Contains(t, body, "error")
		})
	}

	dup := strings.Replace(validSpec, "{", `{"id":"fixed",`, 1)
	resp, _ := env.do(t, http.MethodPost, "/api/tasks", dup)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, _ = env.do(t, http.MethodPost, "/api/tasks", dup)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestTaskTransitions(t *testing.T) {
	env := newTestEnv(t)
	_, created := env.do(t, http.MethodPost, "/api/tasks", validSpec)
	id := created["id"].(string)

	resp, body := env.do(t, http.MethodPost, "/api/tasks/"+id+"/start", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Running", body["task_state"])

	resp, _ = env.do(t, http.MethodDelete, "/api/tasks/"+id, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode, "remove while running")

	resp, body = env.do(t, http.MethodPost, "/api/tasks/"+id+"/stop", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Stopped", body["task_state"])

	resp, _ = env.do(t, http.MethodDelete, "/api/tasks/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = env.do(t, http.MethodGet, "/api/tasks/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUnknownTask(t *testing.T) {
	env := newTestEnv(t)
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/tasks/nope"},
		{http.MethodPost, "/api/tasks/nope/start"},
		{http.MethodPost, "/api/tasks/nope/stop"},
		{http.MethodDelete, "/api/tasks/nope"},
	} {
		resp, _ := env.do(t, tc.method, tc.path, "")
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, "%s %s", tc.method, tc.path)
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", domain.ErrTaskNotFound), http.StatusNotFound},
		{domain.ErrWalletGroupNotFound, http.StatusNotFound},
		{domain.ErrTaskExists, http.StatusConflict},
		{domain.ErrTaskRunning, http.StatusConflict},
		{domain.ErrTaskStopping, http.StatusConflict},
		{domain.ErrInvalidTaskSpec, http.StatusBadRequest},
		{domain.ErrEmptyWalletGroup, http.StatusBadRequest},
		{domain.ErrUnsupportedChain, http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

// ─── Events Websocket ───────────────────────────────────────────────────────

func TestTaskEventsWebsocket(t *testing.T) {
	env := newTestEnv(t)
	_, created := env.do(t, http.MethodPost, "/api/tasks", validSpec)
	id := created["id"].(string)

	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/tasks/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return env.hub.Subscribers(id) == 1 }, 2*time.Second, 5*time.Millisecond)

	env.hub.Emit(domain.NewTaskEvent("other", domain.EventExecuted, "not mine"))
	env.hub.Emit(domain.NewWorkerEvent(id, 1, domain.EventExecuted, "choose account A"))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var evt domain.Event
	require.NoError(t, conn.ReadJSON(&evt))
	assert.Equal(t, id, evt.TaskID)
	assert.Equal(t, "choose account A", evt.Msg)
	require.NotNil(t, evt.WorkerID)
	assert.Equal(t, uint32(1), *evt.WorkerID)

	conn.Close()
	require.Eventually(t, func() bool { return env.hub.Subscribers(id) == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestTaskEventsUnknownTask(t *testing.T) {
	env := newTestEnv(t)
	wsURL := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/tasks/nope/events"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ─── Wallet Groups ──────────────────────────────────────────────────────────

func TestImportWalletGroup(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/wallet-groups",
		`{"name":"farm","chain":"Solana","keys":["key-a","key-b"]}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, float64(2), body["wallets"])
	assert.NotEmpty(t, body["id"])
	assert.NotContains(t, body, "keys")
	id := body["id"].(string)
	assert.Equal(t, domain.PrivateKey("key-b"), env.wallets.groups[id].Keys[1])

	resp, body = env.do(t, http.MethodGet, "/api/wallet-groups", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["wallet_groups"], 1)

	resp, _ = env.do(t, http.MethodDelete, "/api/wallet-groups/"+id, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = env.do(t, http.MethodDelete, "/api/wallet-groups/"+id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestImportWalletGroupRejects(t *testing.T) {
	env := newTestEnv(t)

	resp, _ := env.do(t, http.MethodPost, "/api/wallet-groups", `{"name":"x","chain":"Dogecoin","keys":[]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, body := env.do(t, http.MethodPost, "/api/wallet-groups", `{"name":"x","chain":"Base","keys":["key-ok","garbage"]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, fmt.Sprint(body["error"]), "key 1")
	assert.Empty(t, env.wallets.groups)
}

// ─── Health & Metrics ───────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestHealthDegraded(t *testing.T) {
	logger := zaptest.NewLogger(t)
	c := health.NewChecker(time.Minute, logger, health.Check{
		Name:    "rpc_solana",
		CheckFn: func(context.Context) error { return errors.New("down") },
	})
	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	defer cancel()
	require.Eventually(t, func() bool { return len(c.Statuses()) == 1 }, 2*time.Second, 5*time.Millisecond)

	s := NewServer(newFakeTasks(), events.NewHub(events.Config{}, logger), logger)
	s.SetHealth(c)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"degraded"`)
	assert.Contains(t, rec.Body.String(), "rpc_solana")
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLifecycleLoggedOnlyByRegistry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	s := NewServer(newFakeTasks(), events.NewHub(events.Config{}, logger), logger)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	call := func(method, path, body string) int {
		req, err := http.NewRequest(method, srv.URL+path, strings.NewReader(body))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}
	require.Equal(t, http.StatusCreated, call(http.MethodPost, "/api/tasks", validSpec))
	require.Equal(t, http.StatusOK, call(http.MethodPost, "/api/tasks/t1/start", ""))
	require.Equal(t, http.StatusOK, call(http.MethodPost, "/api/tasks/t1/stop", ""))
	require.Equal(t, http.StatusCreated, call(http.MethodPost, "/api/tasks", validSpec))
	require.Equal(t, http.StatusNoContent, call(http.MethodDelete, "/api/tasks/t2", ""))

	for _, msg := range []string{"task created", "task start", "task stop", "task removed"} {
		assert.Zero(t, logs.FilterMessage(msg).Len(), msg)
	}
}
