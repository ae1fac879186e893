package scanner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MikoBN1/AWAST-Diploma/models"
	"github.com/MikoBN1/AWAST-Diploma/scanner"
	"github.com/MikoBN1/AWAST-Diploma/ws"
	"github.com/MikoBN1/AWAST-Diploma/zap"

	"github.com/stretchr/testify/require"
)

// fakeEngine 按调用次数回放预设的进度/告警序列，最后一个元素之后保持不变
type fakeEngine struct {
	statuses   []int
	ids        [][]string
	details    map[string]zap.Alert
	failDetail map[string]bool
	full       []zap.Alert
	fullErr    error
	statusErr  map[int]error // 第 N 次 ScanStatus 调用返回的错误（从 1 开始）

	statusCalls int
	idsCalls    int
	fullCalls   int
	detailCalls map[string]int
}

func (f *fakeEngine) ScanStatus(ctx context.Context, job string) (int, error) {
	f.statusCalls++
	if err := f.statusErr[f.statusCalls]; err != nil {
		return 0, err
	}
	i := f.statusCalls - 1
	if i >= len(f.statuses) {
		i = len(f.statuses) - 1
	}
	return f.statuses[i], nil
}

func (f *fakeEngine) AlertIDs(ctx context.Context, job string) ([]string, error) {
	f.idsCalls++
	i := f.idsCalls - 1
	if i >= len(f.ids) {
		i = len(f.ids) - 1
	}
	if i < 0 {
		return nil, nil
	}
	return f.ids[i], nil
}

func (f *fakeEngine) Alert(ctx context.Context, id string) (zap.Alert, error) {
	if f.detailCalls == nil {
		f.detailCalls = make(map[string]int)
	}
	f.detailCalls[id]++
	if f.failDetail[id] {
		return zap.Alert{}, &zap.Error{Kind: zap.KindUnreachable, Op: "alert", Err: errors.New("connection reset")}
	}
	return f.details[id], nil
}

func (f *fakeEngine) Alerts(ctx context.Context, baseurl string) ([]zap.Alert, error) {
	f.fullCalls++
	return f.full, f.fullErr
}

// fakeStore 只做记录，SaveFinding 按 finding id 幂等
type fakeStore struct {
	mu       sync.Mutex
	statuses []string
	findings map[string]zap.Alert
	events   []any
	saveErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{findings: make(map[string]zap.Alert)}
}

func (s *fakeStore) UpdateStatus(ctx context.Context, scanID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, status)
	return nil
}

func (s *fakeStore) SaveFinding(ctx context.Context, scanID string, a zap.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.findings[a.ID] = a
	return nil
}

func (s *fakeStore) AppendEvent(ctx context.Context, scanID string, ev any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

// memSub 收集广播事件的内存订阅者
type memSub struct {
	mu     sync.Mutex
	events []any
}

func (s *memSub) Send(ev any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

func (s *memSub) all() []any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]any(nil), s.events...)
}

func newOrchestrator(e *fakeEngine, st *fakeStore, hub *ws.Hub) *scanner.Orchestrator {
	o := scanner.New(e, st, hub)
	o.Interval = time.Millisecond
	return o
}

func TestRunCompletesAndBroadcasts(t *testing.T) {
	t.Parallel()

	a1 := zap.Alert{ID: "a1", Name: "X-Frame-Options Header Not Set", Risk: "Medium", URL: "https://ex.test/"}
	engine := &fakeEngine{
		statuses: []int{10, 100},
		ids:      [][]string{{}, {"a1"}},
		details:  map[string]zap.Alert{"a1": a1},
		full:     []zap.Alert{a1},
	}
	store := newFakeStore()
	hub := ws.NewHub()
	sub := &memSub{}
	hub.Attach("scan-1", sub)

	newOrchestrator(engine, store, hub).Run(context.Background(), "scan-1", "https://ex.test/", "0")

	require.Equal(t, []string{models.StatusRunning, models.StatusDone}, store.statuses)
	require.Len(t, store.findings, 1)
	require.Equal(t, a1, store.findings["a1"])

	events := sub.all()
	require.Len(t, events, 3)

	p1, ok := events[0].(ws.ProgressEvent)
	require.True(t, ok)
	require.Equal(t, 10, p1.Progress)
	require.Empty(t, p1.NewAlerts)
	require.Equal(t, 0, p1.TotalAlerts)

	p2, ok := events[1].(ws.ProgressEvent)
	require.True(t, ok)
	require.Equal(t, 100, p2.Progress)
	require.Equal(t, []zap.Alert{a1}, p2.NewAlerts)
	require.Equal(t, 1, p2.TotalAlerts)

	done, ok := events[2].(ws.DoneEvent)
	require.True(t, ok)
	require.Equal(t, 100, done.Progress)
	require.Equal(t, 1, done.AlertsCount)
	require.Equal(t, 1, done.TotalAlerts)
	require.Equal(t, []zap.Alert{a1}, done.Alerts)
}

func TestRunTimesOutAfterMaxCycles(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{
		statuses: []int{0},
		ids:      [][]string{{}},
	}
	store := newFakeStore()
	hub := ws.NewHub()
	sub := &memSub{}
	hub.Attach("scan-1", sub)

	o := newOrchestrator(engine, store, hub)
	o.Interval = 0
	o.Run(context.Background(), "scan-1", "https://ex.test/", "0")

	// 60 轮之后不再有任何引擎调用
	require.Equal(t, 60, engine.statusCalls)
	require.Equal(t, 60, engine.idsCalls)
	require.Zero(t, engine.fullCalls)

	require.Equal(t, []string{models.StatusRunning, models.StatusError}, store.statuses)

	events := sub.all()
	require.Len(t, events, 61)
	last, ok := events[60].(ws.ErrorEvent)
	require.True(t, ok)
	require.Equal(t, "Scan timeout", last.Message)
	for _, ev := range events[:60] {
		require.IsType(t, ws.ProgressEvent{}, ev)
	}
}

func TestEngineUnreachableFailsRun(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{
		statuses: []int{10, 20, 30},
		ids:      [][]string{{}},
		statusErr: map[int]error{
			3: &zap.Error{Kind: zap.KindUnreachable, Op: "scan_status", Err: errors.New("connection refused")},
		},
	}
	store := newFakeStore()
	hub := ws.NewHub()
	sub := &memSub{}
	hub.Attach("scan-1", sub)

	newOrchestrator(engine, store, hub).Run(context.Background(), "scan-1", "https://ex.test/", "0")

	// 第 3 轮失败后停止轮询，不做内联重试
	require.Equal(t, 3, engine.statusCalls)
	require.Zero(t, engine.fullCalls)
	require.Equal(t, []string{models.StatusRunning, models.StatusError}, store.statuses)

	events := sub.all()
	require.Len(t, events, 3)
	last, ok := events[2].(ws.ErrorEvent)
	require.True(t, ok)
	require.Contains(t, last.Message, "connection refused")
}

func TestDetailFetchFailureIsNotReannounced(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{
		statuses:   []int{50, 100},
		ids:        [][]string{{"a1"}, {"a1"}},
		failDetail: map[string]bool{"a1": true},
	}
	store := newFakeStore()
	hub := ws.NewHub()
	sub := &memSub{}
	hub.Attach("scan-1", sub)

	newOrchestrator(engine, store, hub).Run(context.Background(), "scan-1", "https://ex.test/", "0")

	// 详情只拉了一次：失败后 id 仍算 seen，下一轮不会再播报
	require.Equal(t, 1, engine.detailCalls["a1"])

	events := sub.all()
	require.Len(t, events, 3)
	for _, ev := range events[:2] {
		p, ok := ev.(ws.ProgressEvent)
		require.True(t, ok)
		require.Empty(t, p.NewAlerts)
	}
	done, ok := events[2].(ws.DoneEvent)
	require.True(t, ok)
	require.Equal(t, 0, done.AlertsCount)
	require.Equal(t, 1, done.TotalAlerts)
}

func TestPersistenceFailureFailsRun(t *testing.T) {
	t.Parallel()

	a1 := zap.Alert{ID: "a1", Name: "SQL Injection", Risk: "High"}
	engine := &fakeEngine{
		statuses: []int{100},
		ids:      [][]string{{"a1"}},
		details:  map[string]zap.Alert{"a1": a1},
		full:     []zap.Alert{a1},
	}
	store := newFakeStore()
	store.saveErr = errors.New("save finding: deadlock found")
	hub := ws.NewHub()
	sub := &memSub{}
	hub.Attach("scan-1", sub)

	newOrchestrator(engine, store, hub).Run(context.Background(), "scan-1", "https://ex.test/", "0")

	require.Equal(t, []string{models.StatusRunning, models.StatusError}, store.statuses)

	events := sub.all()
	last, ok := events[len(events)-1].(ws.ErrorEvent)
	require.True(t, ok)
	require.Contains(t, last.Message, "deadlock")

	// 终态只有一个：没有 done
	for _, ev := range events {
		_, isDone := ev.(ws.DoneEvent)
		require.False(t, isDone, "unexpected DoneEvent")
	}
}

func TestFinalizationFailureFailsRun(t *testing.T) {
	t.Parallel()

	engine := &fakeEngine{
		statuses: []int{100},
		ids:      [][]string{{}},
		fullErr:  &zap.Error{Kind: zap.KindRejected, Op: "alerts", Msg: "ZAP API Error: Does Not Exist"},
	}
	store := newFakeStore()
	hub := ws.NewHub()
	sub := &memSub{}
	hub.Attach("scan-1", sub)

	newOrchestrator(engine, store, hub).Run(context.Background(), "scan-1", "https://ex.test/", "0")

	require.Equal(t, []string{models.StatusRunning, models.StatusError}, store.statuses)
	events := sub.all()
	last, ok := events[len(events)-1].(ws.ErrorEvent)
	require.True(t, ok)
	require.Contains(t, last.Message, "Does Not Exist")
}
