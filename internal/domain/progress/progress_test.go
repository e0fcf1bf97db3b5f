package progress

import (
	"math"
	"testing"
	"time"
)

func TestNormalizeMultiStagePercent(t *testing.T) {
	stages := []string{"companyResearch", "strategicNews", "valuesAlignment", "competitiveIntelligence"}

	tests := []struct {
		name      string
		completed map[string]bool
		want      float64
	}{
		{"none complete", map[string]bool{}, 0},
		{"one of four", map[string]bool{"companyResearch": true}, 25},
		{"three of four", map[string]bool{"companyResearch": true, "strategicNews": true, "valuesAlignment": true}, 75},
		{"all four", map[string]bool{"companyResearch": true, "strategicNews": true, "valuesAlignment": true, "competitiveIntelligence": true}, 100},
		{"undeclared id ignored", map[string]bool{"companyResearch": true, "bogus": true}, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Normalize(Input{Mode: ModeMultiStage, Stages: stages, Completed: tt.completed})
			if snap.Percent != tt.want {
				t.Errorf("percent = %v, want %v", snap.Percent, tt.want)
			}
		})
	}
}

func TestNormalizeMultiStageSteps(t *testing.T) {
	stages := []string{"a", "b", "c"}
	snap := Normalize(Input{
		Mode:      ModeMultiStage,
		Stages:    stages,
		Completed: map[string]bool{"a": true},
	})

	want := []StepStatus{StepDone, StepActive, StepPending}
	for i, step := range snap.Steps {
		if step.Status != want[i] {
			t.Errorf("step %s = %s, want %s", step.ID, step.Status, want[i])
		}
	}
}

func TestNormalizeMultiStageOutOfOrderCompletion(t *testing.T) {
	// The last stage settling first leaves the first stage active.
	snap := Normalize(Input{
		Mode:      ModeMultiStage,
		Stages:    []string{"a", "b", "c"},
		Completed: map[string]bool{"c": true},
	})

	want := []StepStatus{StepActive, StepPending, StepDone}
	for i, step := range snap.Steps {
		if step.Status != want[i] {
			t.Errorf("step %s = %s, want %s", step.ID, step.Status, want[i])
		}
	}
}

func TestNormalizePolledClamp(t *testing.T) {
	tests := []struct {
		name     string
		reported float64
		want     float64
	}{
		{"negative clamps to zero", -10, 0},
		{"over 100 clamps", 140, 100},
		{"in range passes through", 62.5, 62.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Normalize(Input{Mode: ModePolled, Stages: []string{"a"}, Reported: tt.reported})
			if snap.Percent != tt.want {
				t.Errorf("percent = %v, want %v", snap.Percent, tt.want)
			}
		})
	}
}

func TestNormalizePolledStepBanding(t *testing.T) {
	// Four even bands; 50 percent means the first two are done and the
	// third is active.
	snap := Normalize(Input{
		Mode:     ModePolled,
		Stages:   []string{"a", "b", "c", "d"},
		Reported: 50,
	})

	want := []StepStatus{StepDone, StepDone, StepActive, StepPending}
	for i, step := range snap.Steps {
		if step.Status != want[i] {
			t.Errorf("step %s = %s, want %s", step.ID, step.Status, want[i])
		}
	}
}

func TestNormalizeEstimatedHoldsBelowHundred(t *testing.T) {
	target := 45 * time.Second

	tests := []struct {
		name    string
		elapsed time.Duration
	}{
		{"halfway", target / 2},
		{"at target", target},
		{"double target", 2 * target},
		{"far past target", 10 * target},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := Normalize(Input{
				Mode:    ModeEstimated,
				Stages:  []string{"feature"},
				Elapsed: tt.elapsed,
				Target:  target,
			})
			if snap.Percent >= 100 {
				t.Errorf("percent = %v, must stay below 100 before completion", snap.Percent)
			}
			if snap.Percent <= 0 {
				t.Errorf("percent = %v, must be positive with elapsed time", snap.Percent)
			}
		})
	}
}

func TestNormalizeEstimatedCurve(t *testing.T) {
	target := 45 * time.Second
	snap := Normalize(Input{
		Mode:    ModeEstimated,
		Stages:  []string{"feature"},
		Elapsed: target / 2,
		Target:  target,
	})

	want := 100 * (1 - math.Exp(-1))
	if math.Abs(snap.Percent-want) > 1e-9 {
		t.Errorf("percent = %v, want %v", snap.Percent, want)
	}
}

func TestNormalizeEstimatedSnapsOnComplete(t *testing.T) {
	snap := Normalize(Input{
		Mode:       ModeEstimated,
		Stages:     []string{"feature"},
		Elapsed:    time.Second,
		Target:     45 * time.Second,
		IsComplete: true,
	})
	if snap.Percent != 100 {
		t.Errorf("percent = %v, want 100 after completion", snap.Percent)
	}
}

func TestTrackerMultiStage(t *testing.T) {
	stages := []string{"companyResearch", "strategicNews", "valuesAlignment", "competitiveIntelligence"}
	tracker := NewMultiStage(stages)

	tracker.CompleteStage("strategicNews")
	tracker.CompleteStage("strategicNews") // idempotent
	tracker.CompleteStage("companyResearch")

	status := tracker.Snapshot()
	if status.Percent != 50 {
		t.Fatalf("percent = %v, want 50", status.Percent)
	}

	tracker.CompleteStage("valuesAlignment")
	tracker.CompleteStage("competitiveIntelligence")
	tracker.MarkComplete()

	status = tracker.Snapshot()
	if status.Percent != 100 {
		t.Fatalf("percent = %v, want 100", status.Percent)
	}
	for _, step := range status.Steps {
		if step.Status != StepDone {
			t.Errorf("step %s = %s, want done", step.ID, step.Status)
		}
	}
}

func TestTrackerEstimatedClock(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	current := base

	tracker := NewEstimated([]string{"behavioralQuestions"}, 40*time.Second)
	tracker.SetClock(func() time.Time { return current })

	status := tracker.Snapshot()
	if status.Percent != 0 {
		t.Fatalf("percent at start = %v, want 0", status.Percent)
	}

	current = base.Add(20 * time.Second)
	status = tracker.Snapshot()
	if status.Percent <= 0 || status.Percent >= 100 {
		t.Fatalf("percent mid-run = %v, want between 0 and 100", status.Percent)
	}
	if status.RemainingSeconds == nil || *status.RemainingSeconds != 20 {
		t.Fatalf("remainingSeconds = %v, want 20", status.RemainingSeconds)
	}
	if status.AlmostDone {
		t.Fatal("almostDone should be false before the target elapses")
	}

	// Past the estimate without completion.
	current = base.Add(60 * time.Second)
	status = tracker.Snapshot()
	if status.RemainingSeconds == nil || *status.RemainingSeconds != 0 {
		t.Fatalf("remainingSeconds = %v, want 0 past target", status.RemainingSeconds)
	}
	if !status.AlmostDone {
		t.Fatal("almostDone should be true past the target without completion")
	}
	if status.Percent >= 100 {
		t.Fatalf("percent = %v, must hold below 100 until completion", status.Percent)
	}

	tracker.MarkComplete()
	status = tracker.Snapshot()
	if status.Percent != 100 {
		t.Fatalf("percent after completion = %v, want 100", status.Percent)
	}
	if status.AlmostDone {
		t.Fatal("almostDone should clear on completion")
	}
}

func TestTrackerPolled(t *testing.T) {
	tracker := NewPolled([]string{"a", "b"})
	tracker.SetReported(75)

	status := tracker.Snapshot()
	if status.Percent != 75 {
		t.Fatalf("percent = %v, want 75", status.Percent)
	}

	want := []StepStatus{StepDone, StepActive}
	for i, step := range status.Steps {
		if step.Status != want[i] {
			t.Errorf("step %s = %s, want %s", step.ID, step.Status, want[i])
		}
	}
}
