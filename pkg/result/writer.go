// Package result exports tally results and stage timings as CSV files.
package result

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"votevault/pkg/election"
	"votevault/pkg/log"
	"votevault/pkg/metrics"
)

// Writer is responsible for creating and writing result files.
type Writer struct {
	resultsPath string
	now         func() time.Time
}

// NewWriter creates a new writer for result files under resultsPath.
func NewWriter(resultsPath string) *Writer {
	return &Writer{resultsPath: resultsPath, now: time.Now}
}

// generateFilename creates a standardized filename for a result file.
// Example: TALLY_E_general-2025_T_2025-01-02-15-04-05.csv
func (w *Writer) generateFilename(fileType, electionRef string) string {
	timestamp := w.now().Format("2006-01-02-15-04-05")
	return filepath.Join(w.resultsPath, fmt.Sprintf("%s_E_%s_T_%s.csv", fileType, electionRef, timestamp))
}

func (w *Writer) create(fileType, electionRef string, write func(io.Writer) error) (string, error) {
	if err := os.MkdirAll(w.resultsPath, 0755); err != nil {
		return "", fmt.Errorf("could not create results directory %s: %w", w.resultsPath, err)
	}
	filePath := w.generateFilename(fileType, electionRef)
	file, err := os.Create(filePath)
	if err != nil {
		return "", fmt.Errorf("could not create %s: %w", filePath, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return "", fmt.Errorf("failed to write %s: %w", filePath, err)
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	log.Info("%s results written to %s", fileType, filePath)
	return filePath, nil
}

// WriteTally saves one row per candidate followed by the result metadata.
func (w *Writer) WriteTally(r *election.TallyResult) (string, error) {
	return w.create("TALLY", r.ElectionRef, func(out io.Writer) error {
		return WriteTallyCSV(out, r)
	})
}

// WriteStats saves summary statistics for each recorded stage.
func (w *Writer) WriteStats(electionRef string, stages []metrics.StageResult) (string, error) {
	return w.create("STATS", electionRef, func(out io.Writer) error {
		return WriteStatsCSV(out, stages)
	})
}

// WriteTallyCSV writes r as CSV to out.
func WriteTallyCSV(out io.Writer, r *election.TallyResult) error {
	csvWriter := csv.NewWriter(out)

	rows := [][]string{{"CandidateID", "CandidateName", "Party", "Votes", "Percentage", "Winner"}}
	for _, c := range r.Results {
		winner := r.Winner != nil && r.Winner.CandidateID == c.CandidateID
		rows = append(rows, []string{
			c.CandidateID,
			c.CandidateName,
			c.Party,
			strconv.Itoa(c.Votes),
			strconv.FormatFloat(c.Percentage, 'f', 2, 64),
			strconv.FormatBool(winner),
		})
	}

	m := r.Metadata
	rows = append(rows,
		[]string{},
		[]string{"Key", "Value"},
		[]string{"ElectionRef", r.ElectionRef},
		[]string{"ResultID", r.ID},
		[]string{"TotalVoters", strconv.Itoa(m.TotalVoters)},
		[]string{"VoterTurnout", strconv.Itoa(m.VoterTurnout)},
		[]string{"TurnoutPercentage", strconv.FormatFloat(m.TurnoutPercentage, 'f', 2, 64)},
		[]string{"InvalidVotes", strconv.Itoa(m.InvalidVotes)},
		[]string{"ElectionType", m.ElectionType},
		[]string{"VerificationMethod", m.VerificationMethod},
		[]string{"VoteRoot", r.VoteRoot},
		[]string{"Finalized", strconv.FormatBool(r.Finalized)},
		[]string{"PublishedAt", r.PublishedAt.Format(time.RFC3339)},
	)
	if a := m.Anchor; a != nil {
		rows = append(rows,
			[]string{"NetworkID", strconv.FormatUint(a.NetworkID, 10)},
			[]string{"ContractAddress", a.ContractAddress},
			[]string{"BlockHeight", strconv.FormatUint(a.BlockHeight, 10)},
			[]string{"TransactionRef", a.TransactionRef},
		)
	}

	if err := csvWriter.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write tally rows: %w", err)
	}
	return nil
}

// WriteStatsCSV writes one wall-clock and one self-time row per stage.
func WriteStatsCSV(out io.Writer, stages []metrics.StageResult) error {
	csvWriter := csv.NewWriter(out)
	defer csvWriter.Flush()

	header := []string{"Component", "Type", "MetricType", "Count", "Mean_us", "Median_us", "Min_us", "Max_us", "P95_us"}
	if err := csvWriter.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}
	for _, s := range stages {
		if err := writeStatsRow(csvWriter, s, "WallClock", s.WallClock); err != nil {
			return err
		}
		if err := writeStatsRow(csvWriter, s, "Self", s.Self); err != nil {
			return err
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

func writeStatsRow(writer *csv.Writer, s metrics.StageResult, metricType string, sum metrics.StatSummary) error {
	if sum.Count == 0 {
		return nil
	}
	row := []string{
		s.Name,
		s.Type.String(),
		metricType,
		strconv.Itoa(sum.Count),
		strconv.FormatInt(sum.Mean.Microseconds(), 10),
		strconv.FormatInt(sum.P50.Microseconds(), 10),
		strconv.FormatInt(sum.Min.Microseconds(), 10),
		strconv.FormatInt(sum.Max.Microseconds(), 10),
		strconv.FormatInt(sum.P95.Microseconds(), 10),
	}
	if err := writer.Write(row); err != nil {
		return fmt.Errorf("failed to write stats row for %s (%s): %w", s.Name, metricType, err)
	}
	return nil
}
