package pocketflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// gateNode tracks how many instances run at once.
type gateNode struct {
	BaseNode
	inFlight *atomic.Int32
	peak     *atomic.Int32
}

func (n gateNode) Exec(ctx context.Context, prep any, ec *ExecutionContext) (any, error) {
	cur := n.inFlight.Add(1)
	defer n.inFlight.Add(-1)
	for {
		p := n.peak.Load()
		if cur <= p || n.peak.CompareAndSwap(p, cur) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return nil, nil
}

func (n gateNode) Post(ctx context.Context, store Store, prep, exec any, ec *ExecutionContext) (Action, error) {
	return Simple("end"), nil
}

func TestRunner_RunAllRespectsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	flow := New("gated").Node("start", gateNode{inFlight: &inFlight, peak: &peak}).Build()

	reqs := make([]RunRequest, 8)
	for i := range reqs {
		reqs[i] = RunRequest{Flow: flow, Store: NewMemoryStore()}
	}

	outcomes := NewRunner(WithConcurrency(2)).RunAll(context.Background(), reqs...)
	require.Len(t, outcomes, 8)
	for _, o := range outcomes {
		require.NoError(t, o.Err)
		require.True(t, o.Result.Success)
	}
	require.LessOrEqual(t, peak.Load(), int32(2))
}

func TestRunner_OutcomesAreIndependent(t *testing.T) {
	ok := New("ok").Node("start", newStep("start", "end")).Build()
	broken := New("broken").Node("start", newStep("start", "nowhere")).Build()

	outcomes := NewRunner().RunAll(context.Background(),
		RunRequest{Flow: ok, Store: NewMemoryStore()},
		RunRequest{Flow: broken, Store: NewMemoryStore()},
		RunRequest{Flow: ok, Store: NewMemoryStore()},
	)

	require.NoError(t, outcomes[0].Err)
	require.ErrorIs(t, outcomes[1].Err, ErrNoRouteFound)
	require.Nil(t, outcomes[1].Result)
	require.NoError(t, outcomes[2].Err)
	require.Same(t, broken, outcomes[1].Request.Flow)
}

func TestRunner_StartNodeOverride(t *testing.T) {
	flow := New("two").
		Node("start", newStep("start", "next")).
		Node("second", newStep("second", "end")).
		Route("start", "next", "second").
		Build()

	res, err := NewRunner().Run(context.Background(), RunRequest{Flow: flow, Store: NewMemoryStore(), StartNode: "second"})
	require.NoError(t, err)
	require.Equal(t, []string{"second"}, res.ExecutionPath)
}

func TestRunner_RejectsIncompleteRequests(t *testing.T) {
	r := NewRunner()
	_, err := r.Run(context.Background(), RunRequest{Store: NewMemoryStore()})
	require.Error(t, err)

	flow := New("f").Node("start", newStep("start", "end")).Build()
	_, err = r.Run(context.Background(), RunRequest{Flow: flow})
	require.Error(t, err)
}

func TestRunner_SharedStoreIsVisibleAcrossRuns(t *testing.T) {
	store := NewMemoryStore()
	reqs := make([]RunRequest, 5)
	for i := range reqs {
		key := fmt.Sprintf("k%d", i)
		step := newStep("start", "end")
		step.key = key
		reqs[i] = RunRequest{Flow: New(key).Node("start", step).Build(), Store: store}
	}

	for _, o := range NewRunner(WithConcurrency(5)).RunAll(context.Background(), reqs...) {
		require.NoError(t, o.Err)
	}
	n, err := store.Len(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, n)
}

func TestScheduler_AddValidatesSpec(t *testing.T) {
	s := NewScheduler(nil, nil)
	defer s.Stop()

	factory := func() (RunRequest, error) { return RunRequest{}, nil }
	require.Error(t, s.Add("not a cron", "bad", factory))
	require.Error(t, s.Add("* * * * *", "nil", nil))
	require.NoError(t, s.Add("*/5 * * * *", "five-field", factory))
	require.NoError(t, s.Add("*/10 * * * * *", "six-field", factory))
	require.NoError(t, s.Add("@hourly", "descriptor", factory))
	require.ElementsMatch(t, []string{"five-field", "six-field", "descriptor"}, s.Names())

	s.Remove("six-field")
	require.ElementsMatch(t, []string{"five-field", "descriptor"}, s.Names())
}

func TestScheduler_TriggersRuns(t *testing.T) {
	var mu sync.Mutex
	var stores []Store
	flow := New("tick").Node("start", newStep("start", "end")).Build()

	s := NewScheduler(NewRunner(), nil)
	require.NoError(t, s.Add("* * * * * *", "every-second", func() (RunRequest, error) {
		store := NewMemoryStore()
		mu.Lock()
		stores = append(stores, store)
		mu.Unlock()
		return RunRequest{Flow: flow, Store: store}, nil
	}))
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if len(stores) == 0 {
			return false
		}
		ok, _ := stores[0].ContainsKey(context.Background(), "start")
		return ok
	}, 3*time.Second, 50*time.Millisecond)
}

func TestScheduler_RunNowReportsFactoryErrors(t *testing.T) {
	s := NewScheduler(NewRunner(), nil)
	defer s.Stop()

	called := false
	s.RunNow("manual", func() (RunRequest, error) {
		called = true
		return RunRequest{}, errors.New("no store available")
	})
	require.True(t, called)
}
