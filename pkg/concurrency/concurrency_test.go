package concurrency

import (
	stdctx "context"
	"errors"
	"sync/atomic"
	"testing"

	"votevault/pkg/config"
	"votevault/pkg/context"
)

func newContext(cores int) *context.OperationContext {
	cfg := config.Default()
	cfg.Cores = cores
	return context.NewContext(cfg, nil)
}

func items(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestMap(t *testing.T) {
	for _, tt := range []struct {
		name  string
		cores int
		n     int
	}{
		{"sequential", 1, 10},
		{"below threshold", 4, minItemsForParallel - 1},
		{"parallel", 4, 500},
		{"empty", 4, 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Map(newContext(tt.cores), items(tt.n), func(v int) (int, error) { return v * v, nil })
			if err != nil {
				t.Fatalf("Map() error = %v", err)
			}
			if len(got) != tt.n {
				t.Fatalf("len = %d, want %d", len(got), tt.n)
			}
			for i, v := range got {
				if v != i*i {
					t.Fatalf("got[%d] = %d, want %d", i, v, i*i)
				}
			}
		})
	}
}

func TestForEachError(t *testing.T) {
	boom := errors.New("boom")
	for _, cores := range []int{1, 4} {
		var calls atomic.Int64
		err := ForEach(newContext(cores), items(200), func(i int, _ int) error {
			calls.Add(1)
			if i == 3 {
				return boom
			}
			return nil
		})
		if !errors.Is(err, boom) {
			t.Errorf("cores=%d: error = %v, want boom", cores, err)
		}
		if cores == 1 && calls.Load() != 4 {
			t.Errorf("sequential run kept going after the error: %d calls", calls.Load())
		}
	}
}

func TestCollect(t *testing.T) {
	bad := errors.New("bad item")
	for _, cores := range []int{1, 4} {
		outcomes, err := Collect(newContext(cores), items(100), func(v int) (int, error) {
			if v%10 == 0 {
				return 0, bad
			}
			return v + 1, nil
		})
		if err != nil {
			t.Fatalf("Collect() error = %v", err)
		}
		failed := 0
		for i, o := range outcomes {
			if o.Err != nil {
				failed++
				if i%10 != 0 {
					t.Errorf("item %d failed: %v", i, o.Err)
				}
				continue
			}
			if o.Value != i+1 {
				t.Errorf("outcome %d = %d", i, o.Value)
			}
		}
		if failed != 10 {
			t.Errorf("cores=%d: %d failures, want 10", cores, failed)
		}
	}
}

func TestCancelled(t *testing.T) {
	ctx := newContext(4)
	cancelled, cancel := stdctx.WithCancel(stdctx.Background())
	cancel()
	ctx = ctx.WithContext(cancelled)

	if _, err := Collect(ctx, items(100), func(v int) (int, error) { return v, nil }); !errors.Is(err, stdctx.Canceled) {
		t.Errorf("Collect() error = %v, want context.Canceled", err)
	}
	if err := ForEach(ctx, items(100), func(int, int) error { return nil }); !errors.Is(err, stdctx.Canceled) {
		t.Errorf("ForEach() error = %v, want context.Canceled", err)
	}
}

func TestNilContext(t *testing.T) {
	got, err := Map(nil, items(3), func(v int) (int, error) { return v + 1, nil })
	if err != nil || len(got) != 3 || got[2] != 3 {
		t.Errorf("Map(nil) = %v, %v", got, err)
	}
}
