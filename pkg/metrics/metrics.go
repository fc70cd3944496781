package metrics

import (
	"fmt"
	"io"
	"sync"
	"syscall"
	"time"
)

// MeasurementType classifies what a measured stage spends its time on.
type MeasurementType uint

const (
	MLogic MeasurementType = iota
	MCrypto
	MStore
	MLedger
	MDiskRead
	MDiskWrite
)

func (mt MeasurementType) String() string {
	switch mt {
	case MLogic:
		return "Logic"
	case MCrypto:
		return "Crypto"
	case MStore:
		return "Store"
	case MLedger:
		return "Ledger"
	case MDiskRead:
		return "DiskRead"
	case MDiskWrite:
		return "DiskWrite"
	default:
		return "Unknown"
	}
}

type TimeTotals struct {
	WallClock, UserTime, SystemTime time.Duration
}

// Measurement is a node in the stage tree of one operation.
type Measurement struct {
	Name     string
	Key      string // Name plus an occurrence suffix when a sibling shares the name
	Type     MeasurementType
	Depth    int
	Totals   TimeTotals
	Children []*Measurement

	seen           map[string]int
	startTime      time.Time
	startRUsage    syscall.Rusage
	startRChildren syscall.Rusage
}

// Recorder builds the stage tree for one operation. Stages must nest; a
// Recorder is shared by goroutines only if they do not record concurrently.
type Recorder struct {
	mu    sync.Mutex
	roots []*Measurement
	stack []*Measurement
	seen  map[string]int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{seen: make(map[string]int)}
}

// Record runs f as a stage named name. A nil Recorder runs f unmeasured.
func (r *Recorder) Record(name string, mType MeasurementType, f func() error) (err error) {
	if r == nil {
		return f()
	}
	if err = r.start(name, mType); err != nil {
		return fmt.Errorf("could not start timer for '%s': %w", name, err)
	}
	defer func() {
		if stopErr := r.stop(name); stopErr != nil {
			if err != nil {
				err = fmt.Errorf("op error for '%s' (%w) and stop error (%w)", name, err, stopErr)
			} else {
				err = stopErr
			}
		}
	}()
	return f()
}

func (r *Recorder) start(name string, mType MeasurementType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	seen := r.seen
	depth := 0
	var parent *Measurement
	if n := len(r.stack); n > 0 {
		parent = r.stack[n-1]
		seen = parent.seen
		depth = parent.Depth + 1
	}

	key := name
	if count := seen[name]; count > 0 {
		key = fmt.Sprintf("%s_%d", name, count)
	}
	seen[name]++

	m := &Measurement{Name: name, Key: key, Type: mType, Depth: depth, seen: make(map[string]int)}
	if parent != nil {
		parent.Children = append(parent.Children, m)
	} else {
		r.roots = append(r.roots, m)
	}

	var err error
	if m.startRUsage, err = getRUsage(syscall.RUSAGE_SELF); err != nil {
		return err
	}
	if m.startRChildren, err = getRUsage(syscall.RUSAGE_CHILDREN); err != nil {
		return err
	}
	m.startTime = time.Now()
	r.stack = append(r.stack, m)
	return nil
}

func (r *Recorder) stop(name string) error {
	end := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.stack) == 0 {
		return fmt.Errorf("cannot stop '%s': no active measurements", name)
	}
	m := r.stack[len(r.stack)-1]
	if m.Name != name {
		return fmt.Errorf("cannot stop '%s': the active measurement is '%s'", name, m.Name)
	}

	endRUsage, err := getRUsage(syscall.RUSAGE_SELF)
	if err != nil {
		return err
	}
	endRChildren, err := getRUsage(syscall.RUSAGE_CHILDREN)
	if err != nil {
		return err
	}
	m.Totals.WallClock = end.Sub(m.startTime)
	m.Totals.UserTime = rtimeDifference(m.startRUsage.Utime, endRUsage.Utime) + rtimeDifference(m.startRChildren.Utime, endRChildren.Utime)
	m.Totals.SystemTime = rtimeDifference(m.startRUsage.Stime, endRUsage.Stime) + rtimeDifference(m.startRChildren.Stime, endRChildren.Stime)

	r.stack = r.stack[:len(r.stack)-1]
	return nil
}

// Roots returns the top-level stages recorded so far.
func (r *Recorder) Roots() []*Measurement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Measurement(nil), r.roots...)
}

// Find returns the first recorded stage with the given key, searching depth-first.
func (r *Recorder) Find(key string) *Measurement {
	for _, root := range r.Roots() {
		if m := find(root, key); m != nil {
			return m
		}
	}
	return nil
}

func find(m *Measurement, key string) *Measurement {
	if m.Key == key {
		return m
	}
	for _, c := range m.Children {
		if found := find(c, key); found != nil {
			return found
		}
	}
	return nil
}

// PrintTree writes the stage tree to w. A maxDepth of -1 prints every level.
func (r *Recorder) PrintTree(w io.Writer, maxDepth int) {
	fmt.Fprintf(w, "--- Stage Tree (Depth <= %d) ---\n", maxDepth)
	if maxDepth < 0 {
		maxDepth = 1000
	}
	roots := r.Roots()
	for i, root := range roots {
		printNode(w, root, "", i == len(roots)-1, maxDepth)
	}
}

func printNode(w io.Writer, m *Measurement, prefix string, isLast bool, maxDepth int) {
	branch, next := "├── ", "│   "
	if isLast {
		branch, next = "└── ", "    "
	}
	fmt.Fprintf(w, "%s%s%s (%s) - %s\n", prefix, branch, m.Key, m.Type, m.Totals.WallClock.Round(time.Microsecond))

	if m.Depth >= maxDepth {
		if len(m.Children) > 0 {
			fmt.Fprintf(w, "%s%s└── [... %d hidden ...]\n", prefix, next, len(m.Children))
		}
		return
	}
	for i, child := range m.Children {
		printNode(w, child, prefix+next, i == len(m.Children)-1, maxDepth)
	}
}

func getRUsage(who int) (syscall.Rusage, error) {
	var rusage syscall.Rusage
	err := syscall.Getrusage(who, &rusage)
	return rusage, err
}

func rtimeDifference(start, end syscall.Timeval) time.Duration {
	startDuration := time.Duration(start.Sec)*time.Second + time.Duration(start.Usec)*time.Microsecond
	endDuration := time.Duration(end.Sec)*time.Second + time.Duration(end.Usec)*time.Microsecond
	return endDuration - startDuration
}
