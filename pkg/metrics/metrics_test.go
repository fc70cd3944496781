package metrics

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRecorderTree(t *testing.T) {
	rec := NewRecorder()
	err := rec.Record("Tally", MLogic, func() error {
		for i := 0; i < 2; i++ {
			if err := rec.Record("Decrypt", MCrypto, func() error {
				time.Sleep(time.Millisecond)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	roots := rec.Roots()
	if len(roots) != 1 || roots[0].Name != "Tally" || len(roots[0].Children) != 2 {
		t.Fatalf("unexpected tree %+v", roots)
	}
	if rec.Find("Decrypt") == nil || rec.Find("Decrypt_1") == nil {
		t.Error("repeated stages are not keyed by occurrence")
	}
	d := rec.Find("Decrypt_1")
	if d.Depth != 1 || d.Type != MCrypto || d.Totals.WallClock < time.Millisecond {
		t.Errorf("Decrypt_1 = %+v", d)
	}
	if roots[0].Totals.WallClock < 2*time.Millisecond {
		t.Errorf("parent wall clock %s shorter than its children", roots[0].Totals.WallClock)
	}

	var buf bytes.Buffer
	rec.PrintTree(&buf, 0)
	out := buf.String()
	if !strings.Contains(out, "Tally (Logic)") || !strings.Contains(out, "[... 2 hidden ...]") {
		t.Errorf("PrintTree(0) =\n%s", out)
	}
	buf.Reset()
	rec.PrintTree(&buf, -1)
	if !strings.Contains(buf.String(), "Decrypt_1 (Crypto)") {
		t.Errorf("PrintTree(-1) =\n%s", buf.String())
	}
}

func TestRecordError(t *testing.T) {
	boom := errors.New("boom")
	rec := NewRecorder()
	if err := rec.Record("Fail", MStore, func() error { return boom }); !errors.Is(err, boom) {
		t.Errorf("Record() error = %v, want boom", err)
	}
	// The failed stage is still closed.
	if err := rec.Record("Next", MStore, func() error { return nil }); err != nil {
		t.Errorf("Record() after failure: %v", err)
	}
	if len(rec.Roots()) != 2 {
		t.Errorf("roots = %d, want 2", len(rec.Roots()))
	}

	var nilRec *Recorder
	called := false
	if err := nilRec.Record("x", MLogic, func() error { called = true; return nil }); err != nil || !called {
		t.Errorf("nil recorder: called=%t err=%v", called, err)
	}
}

func TestAnalyzer(t *testing.T) {
	a := NewAnalyzer()
	for i := 0; i < 3; i++ {
		rec := NewRecorder()
		_ = rec.Record("CastAVote", MLogic, func() error {
			return rec.Record("Seal", MCrypto, func() error { return nil })
		})
		a.Add(rec)
	}
	a.Add(nil)

	stages := a.Analyze()
	if len(stages) != 2 || stages[0].Name != "CastAVote" || stages[1].Name != "Seal" {
		t.Fatalf("stages = %+v", stages)
	}
	if stages[0].WallClock.Count != 3 || stages[1].Type != MCrypto {
		t.Errorf("stages = %+v", stages)
	}
	if stages[0].Self.Max > stages[0].WallClock.Max {
		t.Error("self time exceeds wall clock")
	}
}

func TestSummarize(t *testing.T) {
	if got := Summarize(nil); got != (StatSummary{}) {
		t.Errorf("Summarize(nil) = %+v", got)
	}
	var samples []time.Duration
	for i := 1; i <= 100; i++ {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}
	s := Summarize(samples)
	if s.Count != 100 || s.Min != time.Millisecond || s.Max != 100*time.Millisecond {
		t.Errorf("Summarize() = %+v", s)
	}
	if s.P50 != 50*time.Millisecond || s.P95 != 95*time.Millisecond {
		t.Errorf("quantiles = %s / %s", s.P50, s.P95)
	}
	if s.Mean < 50*time.Millisecond || s.Mean > 51*time.Millisecond {
		t.Errorf("mean = %s", s.Mean)
	}
}
