package result

import (
	"bytes"
	"encoding/csv"
	"os"
	"strings"
	"testing"
	"time"

	"votevault/pkg/election"
	"votevault/pkg/metrics"
)

func sampleResult() *election.TallyResult {
	results := []election.CandidateResult{
		{CandidateID: "a", CandidateName: "Alice", Party: "Blue", Votes: 4, Percentage: 66.67},
		{CandidateID: "b", CandidateName: "Bob", Party: "Red", Votes: 2, Percentage: 33.33},
	}
	return &election.TallyResult{
		ID:          "r1",
		ElectionRef: "e1",
		Results:     results,
		Winner:      &results[0],
		Metadata: election.Metadata{
			TotalVoters:        10,
			VoterTurnout:       6,
			TurnoutPercentage:  60,
			InvalidVotes:       1,
			ElectionType:       "General",
			VerificationMethod: election.VerificationMethod,
			Anchor:             &election.Anchor{NetworkID: 1, BlockHeight: 100, TransactionRef: "0xabc"},
		},
		Finalized:   true,
		PublishedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func readAll(t *testing.T, data []byte) [][]string {
	t.Helper()
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	return rows
}

func TestWriteTallyCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteTallyCSV(&buf, sampleResult()); err != nil {
		t.Fatal(err)
	}
	rows := readAll(t, buf.Bytes())

	if got := strings.Join(rows[1], ","); got != "a,Alice,Blue,4,66.67,true" {
		t.Errorf("row 1 = %s", got)
	}
	if got := strings.Join(rows[2], ","); got != "b,Bob,Red,2,33.33,false" {
		t.Errorf("row 2 = %s", got)
	}
	meta := make(map[string]string)
	for _, row := range rows[3:] {
		if len(row) == 2 {
			meta[row[0]] = row[1]
		}
	}
	want := map[string]string{
		"TurnoutPercentage": "60.00",
		"InvalidVotes":      "1",
		"BlockHeight":       "100",
		"TransactionRef":    "0xabc",
		"Finalized":         "true",
	}
	for k, v := range want {
		if meta[k] != v {
			t.Errorf("%s = %q, want %q", k, meta[k], v)
		}
	}
}

func TestWriteStatsCSV(t *testing.T) {
	stages := []metrics.StageResult{{
		Name:      "Tally",
		Type:      metrics.MLogic,
		WallClock: metrics.Summarize([]time.Duration{time.Millisecond, 3 * time.Millisecond}),
		Self:      metrics.Summarize([]time.Duration{time.Millisecond}),
	}, {
		Name: "Empty",
	}}
	var buf bytes.Buffer
	if err := WriteStatsCSV(&buf, stages); err != nil {
		t.Fatal(err)
	}
	rows := readAll(t, buf.Bytes())
	if len(rows) != 3 {
		t.Fatalf("rows = %v", rows)
	}
	if rows[1][0] != "Tally" || rows[1][2] != "WallClock" || rows[1][3] != "2" || rows[1][4] != "2000" {
		t.Errorf("wall clock row = %v", rows[1])
	}
	if rows[2][2] != "Self" || rows[2][3] != "1" {
		t.Errorf("self row = %v", rows[2])
	}
}

func TestWriterFiles(t *testing.T) {
	w := NewWriter(t.TempDir())
	w.now = func() time.Time { return time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC) }

	path, err := w.WriteTally(sampleResult())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(path, "TALLY_E_e1_T_2025-01-02-15-04-05.csv") {
		t.Errorf("path = %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(readAll(t, data)) == 0 {
		t.Error("empty tally file")
	}

	if _, err := w.WriteStats("e1", nil); err != nil {
		t.Errorf("WriteStats() error = %v", err)
	}
}
