// Package segment builds the ordered list of segment plans for one job:
// Intro, Analysis, one Step block per solution step, Conclusion.
package segment

import (
	"fmt"
	"time"

	"github.com/bobarin/mathcast/internal/models"
)

type Role int

const (
	RoleIntro Role = iota
	RoleAnalysis
	RoleStep
	RoleConclusion
)

func (r Role) String() string {
	switch r {
	case RoleIntro:
		return "intro"
	case RoleAnalysis:
		return "analysis"
	case RoleStep:
		return "step"
	case RoleConclusion:
		return "conclusion"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// Durations are the fixed per-role on-screen times. They are set once at
// process start and never derived from content.
type Durations struct {
	Intro      time.Duration
	Analysis   time.Duration
	Step       time.Duration
	Conclusion time.Duration
}

func DefaultDurations() Durations {
	return Durations{
		Intro:      4 * time.Second,
		Analysis:   3 * time.Second,
		Step:       4 * time.Second,
		Conclusion: 3 * time.Second,
	}
}

func (d Durations) For(r Role) time.Duration {
	switch r {
	case RoleIntro:
		return d.Intro
	case RoleAnalysis:
		return d.Analysis
	case RoleStep:
		return d.Step
	default:
		return d.Conclusion
	}
}

// Validate checks that every duration is positive and a whole number of
// frame periods at fps.
func (d Durations) Validate(fps int) error {
	if fps <= 0 {
		return fmt.Errorf("frame rate must be positive, got %d", fps)
	}
	for _, r := range []Role{RoleIntro, RoleAnalysis, RoleStep, RoleConclusion} {
		v := d.For(r)
		if v <= 0 {
			return fmt.Errorf("%s duration must be positive, got %v", r, v)
		}
		if (v*time.Duration(fps))%time.Second != 0 {
			return fmt.Errorf("%s duration %v is not a whole number of frames at %d fps", r, v, fps)
		}
	}
	return nil
}

// PlaceholderSteps stand in for an empty solution so the video still walks
// through a method.
var PlaceholderSteps = []models.Step{
	{Index: 1, Description: "Identify the problem type and variables"},
	{Index: 2, Description: "Apply appropriate mathematical principles"},
	{Index: 3, Description: "Solve step by step"},
}

// Plan is one segment of the timeline. Plans are owned by a single assembler
// run and never shared across jobs.
type Plan struct {
	Role     Role
	Duration time.Duration
	Problem  models.ProblemRecord

	// Step segments only.
	Step        models.Step
	StepCount   int
	Placeholder bool

	// Conclusion only.
	FinalAnswer string
}

// Name is a stable identifier such as "intro" or "step-2".
func (p Plan) Name() string {
	if p.Role == RoleStep {
		return fmt.Sprintf("step-%d", p.Step.Index)
	}
	return p.Role.String()
}

// Build validates the records and produces the ordered plans. Every solution
// step yields exactly one Step plan.
func Build(problem models.ProblemRecord, solution models.SolutionRecord, d Durations) ([]Plan, error) {
	if err := models.ValidateInput(problem, solution); err != nil {
		return nil, err
	}
	problem = problem.Normalized()

	steps := solution.Steps
	placeholder := false
	if len(steps) == 0 {
		steps = PlaceholderSteps
		placeholder = true
	}

	plans := make([]Plan, 0, len(steps)+3)
	plans = append(plans,
		Plan{Role: RoleIntro, Duration: d.Intro, Problem: problem},
		Plan{Role: RoleAnalysis, Duration: d.Analysis, Problem: problem},
	)
	for _, step := range steps {
		plans = append(plans, Plan{
			Role:        RoleStep,
			Duration:    d.Step,
			Problem:     problem,
			Step:        step,
			StepCount:   len(steps),
			Placeholder: placeholder,
		})
	}
	plans = append(plans, Plan{
		Role:        RoleConclusion,
		Duration:    d.Conclusion,
		Problem:     problem,
		FinalAnswer: solution.FinalAnswer,
	})
	return plans, nil
}

// Total is the sum of planned durations.
func Total(plans []Plan) time.Duration {
	var sum time.Duration
	for _, p := range plans {
		sum += p.Duration
	}
	return sum
}
