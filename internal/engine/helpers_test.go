package engine

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/petrijr/pocketflow/internal/persistence"
	"github.com/petrijr/pocketflow/pkg/api"
)

type storeFactory func(t *testing.T) api.Store

func storeFactories() map[string]storeFactory {
	return map[string]storeFactory{
		"in-memory": func(t *testing.T) api.Store {
			return persistence.NewInMemoryStore()
		},
		"file": func(t *testing.T) api.Store {
			s, err := persistence.NewFileStore(filepath.Join(t.TempDir(), "store.json"))
			if err != nil {
				t.Fatalf("NewFileStore failed: %v", err)
			}
			return s
		},
		"sqlite": func(t *testing.T) api.Store {
			db, err := sql.Open("sqlite", ":memory:")
			if err != nil {
				t.Fatalf("sql.Open failed: %v", err)
			}
			db.SetMaxOpenConns(1)
			t.Cleanup(func() { _ = db.Close() })

			s, err := persistence.NewSQLiteStore(db, "")
			if err != nil {
				t.Fatalf("NewSQLiteStore failed: %v", err)
			}
			return s
		},
	}
}

// actionNode returns a fixed action and counts its runs.
type actionNode struct {
	api.BaseNode
	action string
	runs   atomic.Int32
}

func newActionNode(name, action string) *actionNode {
	return &actionNode{BaseNode: api.BaseNode{NodeName: name}, action: action}
}

func (n *actionNode) Post(ctx context.Context, store api.Store, prep, exec any, ec *api.ExecutionContext) (api.Action, error) {
	n.runs.Add(1)
	return api.Simple(n.action), nil
}

// flakyNode fails Exec until attempt number succeedOn, then stores the
// attempt that succeeded under "result".
type flakyNode struct {
	api.BaseNode
	succeedOn int
	attempts  atomic.Int32
	preps     atomic.Int32
}

func (n *flakyNode) Prep(ctx context.Context, store api.Store, ec *api.ExecutionContext) (any, error) {
	n.preps.Add(1)
	return "input", nil
}

func (n *flakyNode) Exec(ctx context.Context, prep any, ec *api.ExecutionContext) (any, error) {
	attempt := int(n.attempts.Add(1))
	if attempt < n.succeedOn {
		return nil, errors.New("transient failure")
	}
	return attempt, nil
}

func (n *flakyNode) Post(ctx context.Context, store api.Store, prep, exec any, ec *api.ExecutionContext) (api.Action, error) {
	if err := store.Set(ctx, "result", exec); err != nil {
		return api.Action{}, err
	}
	return api.Simple("end"), nil
}

// failingNode always fails Exec. With sentinel set its fallback substitutes
// that value instead of failing.
type failingNode struct {
	api.BaseNode
	sentinel any
	attempts atomic.Int32
}

func (n *failingNode) Exec(ctx context.Context, prep any, ec *api.ExecutionContext) (any, error) {
	n.attempts.Add(1)
	return nil, errors.New("always fails")
}

func (n *failingNode) ExecFallback(ctx context.Context, prep any, err error, ec *api.ExecutionContext) (any, error) {
	if n.sentinel == nil {
		return nil, err
	}
	return n.sentinel, nil
}

func (n *failingNode) Post(ctx context.Context, store api.Store, prep, exec any, ec *api.ExecutionContext) (api.Action, error) {
	if err := store.Set(ctx, "fallback", exec); err != nil {
		return api.Action{}, err
	}
	return api.Simple("next"), nil
}

// blockingNode waits in Exec until ctx is done.
type blockingNode struct {
	api.BaseNode
}

func (n *blockingNode) Exec(ctx context.Context, prep any, ec *api.ExecutionContext) (any, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func mustExecute(t *testing.T, f *Flow, store api.Store) *api.ExecutionResult {
	t.Helper()
	res, err := f.Execute(context.Background(), store)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	return res
}
