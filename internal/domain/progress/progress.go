// Package progress normalizes the three generation progress shapes
// (polled percent, multi-stage completion, time-based estimate) into one
// renderable value. The normalization is a pure function so it can be
// tested without timers or transport.
package progress

import (
	"math"
	"sync"
	"time"
)

// Mode tags the input shape feeding the model.
type Mode string

const (
	ModePolled     Mode = "polled"
	ModeMultiStage Mode = "multi-stage"
	ModeEstimated  Mode = "estimated"
)

// StepStatus is the renderable state of one declared step.
type StepStatus string

const (
	StepDone    StepStatus = "done"
	StepActive  StepStatus = "active"
	StepPending StepStatus = "pending"
)

// Step pairs a stage id with its derived display state.
type Step struct {
	ID     string     `json:"id"`
	Status StepStatus `json:"status"`
}

// Input is the tagged variant consumed by Normalize. Exactly one of the
// mode-specific field groups is meaningful, selected by Mode.
type Input struct {
	Mode Mode

	// Stages declares the step ids in display order. K = len(Stages).
	Stages []string

	// Polled: externally reported percent.
	Reported float64

	// MultiStage: set of completed stage ids.
	Completed map[string]bool

	// Estimated: elapsed time against a target duration.
	Elapsed    time.Duration
	Target     time.Duration
	IsComplete bool
}

// Snapshot is the single displayable value every mode reduces to.
type Snapshot struct {
	Percent float64 `json:"percent"`
	Steps   []Step  `json:"perStep"`
}

// Normalize reduces a tagged input to {percent, perStep}.
func Normalize(in Input) Snapshot {
	k := len(in.Stages)

	var percent float64
	switch in.Mode {
	case ModePolled:
		percent = clamp(in.Reported)
	case ModeMultiStage:
		if k == 0 {
			percent = 0
		} else {
			percent = 100 * float64(countCompleted(in)) / float64(k)
		}
	case ModeEstimated:
		percent = estimatedPercent(in.Elapsed, in.Target, in.IsComplete)
	}

	snap := Snapshot{Percent: percent, Steps: make([]Step, 0, k)}

	if in.Mode == ModeMultiStage {
		// Step state follows membership in the completed set; the first
		// incomplete stage in declared order is the active one.
		activeAssigned := false
		for _, id := range in.Stages {
			status := StepPending
			if in.Completed[id] {
				status = StepDone
			} else if !activeAssigned {
				status = StepActive
				activeAssigned = true
			}
			snap.Steps = append(snap.Steps, Step{ID: id, Status: status})
		}
		return snap
	}

	// polled/estimated: derive step state by even 0-100 banding.
	for i, id := range in.Stages {
		status := StepPending
		switch {
		case percent >= 100*float64(i+1)/float64(k):
			status = StepDone
		case percent >= 100*float64(i)/float64(k):
			status = StepActive
		}
		snap.Steps = append(snap.Steps, Step{ID: id, Status: status})
	}
	return snap
}

func countCompleted(in Input) int {
	// Count only declared stages so a stray completion id cannot push the
	// percent past 100.
	n := 0
	for _, id := range in.Stages {
		if in.Completed[id] {
			n++
		}
	}
	return n
}

// estimatedPercent eases toward 100 as elapsed approaches the target but
// holds below it until completion is signaled, then snaps to 100.
func estimatedPercent(elapsed, target time.Duration, complete bool) float64 {
	if complete {
		return 100
	}
	if target <= 0 || elapsed <= 0 {
		return 0
	}
	ratio := float64(elapsed) / float64(target)
	percent := 100 * (1 - math.Exp(-2*ratio))
	if percent > 99 {
		percent = 99
	}
	return percent
}

func clamp(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Status is a pull-based progress snapshot with timing context attached.
type Status struct {
	Percent          float64  `json:"percent"`
	Steps            []Step   `json:"perStep"`
	ElapsedSeconds   float64  `json:"elapsedSeconds"`
	RemainingSeconds *float64 `json:"remainingSeconds,omitempty"`
	AlmostDone       bool     `json:"almostDone"`
}

// Tracker accumulates progress-relevant events for one generation run and
// recomputes the snapshot on demand. Stage notifications may arrive in any
// order and are idempotent.
type Tracker struct {
	mu        sync.Mutex
	mode      Mode
	stages    []string
	completed map[string]bool
	reported  float64
	start     time.Time
	target    time.Duration
	complete  bool

	now func() time.Time
}

// NewMultiStage creates a tracker fed by discrete stage completions.
func NewMultiStage(stages []string) *Tracker {
	return &Tracker{
		mode:      ModeMultiStage,
		stages:    append([]string(nil), stages...),
		completed: make(map[string]bool),
		start:     time.Now().UTC(),
		now:       time.Now,
	}
}

// NewPolled creates a tracker fed by an externally reported percent.
func NewPolled(stages []string) *Tracker {
	return &Tracker{
		mode:      ModePolled,
		stages:    append([]string(nil), stages...),
		completed: make(map[string]bool),
		start:     time.Now().UTC(),
		now:       time.Now,
	}
}

// NewEstimated creates a tracker with no signal other than elapsed time
// against a target duration.
func NewEstimated(stages []string, target time.Duration) *Tracker {
	return &Tracker{
		mode:      ModeEstimated,
		stages:    append([]string(nil), stages...),
		completed: make(map[string]bool),
		start:     time.Now().UTC(),
		target:    target,
		now:       time.Now,
	}
}

// SetClock overrides the wall clock, for tests.
func (t *Tracker) SetClock(now func() time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.now = now
	t.start = now().UTC()
}

// CompleteStage records one settled stage. Attempted-but-failed sources
// count as completed for display purposes; the record itself tracks which
// sources actually produced values.
func (t *Tracker) CompleteStage(stageID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.completed[stageID] = true
}

// SetReported records an externally polled percent.
func (t *Tracker) SetReported(percent float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reported = percent
}

// MarkComplete signals terminal completion; estimated mode snaps to 100.
func (t *Tracker) MarkComplete() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.complete = true
}

// IsComplete reports whether the run has been marked complete.
func (t *Tracker) IsComplete() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.complete
}

// Snapshot recomputes the current status.
func (t *Tracker) Snapshot() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	completed := make(map[string]bool, len(t.completed))
	for id := range t.completed {
		completed[id] = true
	}

	elapsed := t.now().UTC().Sub(t.start)
	snap := Normalize(Input{
		Mode:       t.mode,
		Stages:     t.stages,
		Reported:   t.reported,
		Completed:  completed,
		Elapsed:    elapsed,
		Target:     t.target,
		IsComplete: t.complete,
	})

	// Multi-stage runs are terminal once every declared stage has settled.
	if t.mode == ModeMultiStage && len(t.stages) > 0 && len(completed) >= len(t.stages) {
		snap.Percent = 100
	}
	if t.complete {
		snap.Percent = 100
	}

	status := Status{
		Percent:        snap.Percent,
		Steps:          snap.Steps,
		ElapsedSeconds: elapsed.Seconds(),
	}

	if t.target > 0 {
		remaining := (t.target - elapsed).Seconds()
		if remaining < 0 {
			// Past the estimate without completion: report "almost done"
			// instead of a negative countdown.
			remaining = 0
			status.AlmostDone = !t.complete
		}
		status.RemainingSeconds = &remaining
	}

	return status
}
