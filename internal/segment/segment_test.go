package segment

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bobarin/mathcast/internal/models"
)

func problem() models.ProblemRecord {
	return models.ProblemRecord{OriginalText: "2x + 3 = 7", ProblemType: models.ProblemTypeEquation}
}

func steps(n int) []models.Step {
	out := make([]models.Step, n)
	for i := range out {
		out[i] = models.Step{Index: i + 1, Description: fmt.Sprintf("step %d", i+1)}
	}
	return out
}

func TestBuildOneStepPlanPerStep(t *testing.T) {
	for _, n := range []int{1, 2, 5, 12} {
		plans, err := Build(problem(), models.SolutionRecord{Steps: steps(n), FinalAnswer: "x = 2"}, DefaultDurations())
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		if len(plans) != n+3 {
			t.Fatalf("n=%d: expected %d plans, got %d", n, n+3, len(plans))
		}
		if plans[0].Role != RoleIntro || plans[1].Role != RoleAnalysis || plans[len(plans)-1].Role != RoleConclusion {
			t.Errorf("n=%d: wrong framing roles", n)
		}
		for i := 0; i < n; i++ {
			p := plans[i+2]
			if p.Role != RoleStep || p.Step.Index != i+1 || p.StepCount != n || p.Placeholder {
				t.Errorf("n=%d: plan %d = %+v", n, i+2, p)
			}
		}
	}
}

func TestBuildPlaceholders(t *testing.T) {
	plans, err := Build(problem(), models.SolutionRecord{FinalAnswer: "x = 2"}, DefaultDurations())
	if err != nil {
		t.Fatal(err)
	}
	if len(plans) != 6 {
		t.Fatalf("expected 6 plans, got %d", len(plans))
	}
	for i, p := range plans[2:5] {
		if !p.Placeholder || p.Step.Description != PlaceholderSteps[i].Description {
			t.Errorf("plan %d is not placeholder %d: %+v", i+2, i, p)
		}
	}
	if total := Total(plans); total != 4*time.Second+3*time.Second+12*time.Second+3*time.Second {
		t.Errorf("unexpected total %v", total)
	}
	if plans[0].Problem.Complexity != models.ComplexityIntermediate {
		t.Errorf("problem not normalized: %+v", plans[0].Problem)
	}
}

func TestBuildRejectsMalformed(t *testing.T) {
	_, err := Build(problem(), models.SolutionRecord{Steps: []models.Step{{Index: 2, Description: "x"}}}, DefaultDurations())
	if !errors.Is(err, models.ErrUpstreamData) {
		t.Fatalf("expected ErrUpstreamData, got %v", err)
	}
}

func TestDurationsValidate(t *testing.T) {
	d := DefaultDurations()
	for _, fps := range []int{1, 2, 3, 10, 30} {
		if err := d.Validate(fps); err != nil {
			t.Errorf("default durations at %d fps: %v", fps, err)
		}
	}
	d.Step = 1500 * time.Millisecond
	if err := d.Validate(3); err == nil {
		t.Error("1.5s at 3fps should be rejected")
	}
	if err := d.Validate(2); err != nil {
		t.Errorf("1.5s at 2fps should be accepted: %v", err)
	}
	d.Step = 0
	if err := d.Validate(10); err == nil {
		t.Error("zero duration should be rejected")
	}
}

func TestPlanName(t *testing.T) {
	if n := (Plan{Role: RoleStep, Step: models.Step{Index: 3}}).Name(); n != "step-3" {
		t.Errorf("got %q", n)
	}
	if n := (Plan{Role: RoleConclusion}).Name(); n != "conclusion" {
		t.Errorf("got %q", n)
	}
}
