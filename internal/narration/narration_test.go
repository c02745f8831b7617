package narration

import (
	"strings"
	"testing"

	"github.com/bobarin/mathcast/internal/models"
	"github.com/bobarin/mathcast/internal/segment"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`The answer is \boxed{42}`, "The answer is the answer is 42"},
		{"**Bold** and _emph_ `code`", "Bold and emph code"},
		{"x^2 = 9", "x to the power of 2 equals 9"},
		{"  lots   of\n\nspace  ", "lots of space"},
		{"√16 × π", "square root of 16 times pi"},
		{"$x$ ≤ 3", "x is less than or equal to 3"},
		{"# Heading", "Heading"},
	}
	for _, tt := range tests {
		if got := Sanitize(tt.in); got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	in := `Step 1 of 2. **Move** terms: \boxed{x = 2} and y^2 ≥ 0 [note]`
	once := Sanitize(in)
	if twice := Sanitize(once); twice != once {
		t.Errorf("not idempotent: %q -> %q", once, twice)
	}
}

func TestSpokenEquation(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2x + 3 = 7", "2x plus 3 equals 7"},
		{"2x = 7 - 3", "2x equals 7 minus 3"},
		{"x = 8/2", "x equals 8 divided by 2"},
		{"a*b", "a times b"},
		{"x <= 4", "x is less than or equal to 4"},
		{"x != 0", "x is not equal to 0"},
	}
	for _, tt := range tests {
		if got := SpokenEquation(tt.in); got != tt.want {
			t.Errorf("SpokenEquation(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestScript(t *testing.T) {
	problem := models.ProblemRecord{
		OriginalText: "Solve 2x + 3 = 7",
		ProblemType:  models.ProblemTypeEquation,
		Complexity:   models.ComplexityIntermediate,
	}
	tests := []struct {
		plan segment.Plan
		want string
	}{
		{
			segment.Plan{Role: segment.RoleIntro, Problem: problem},
			"Welcome to the Math Problem Solver. Today we'll solve: Solve 2x + 3 equals 7",
		},
		{
			segment.Plan{Role: segment.RoleAnalysis, Problem: problem},
			"This is an equation problem with intermediate complexity. Let's break it down step by step.",
		},
		{
			segment.Plan{Role: segment.RoleStep, Problem: problem, StepCount: 2,
				Step: models.Step{Index: 1, Description: "Subtract 3 from both sides", Equation: "2x = 4"}},
			"Step 1 of 2. Subtract 3 from both sides. 2x equals 4.",
		},
		{
			segment.Plan{Role: segment.RoleStep, Problem: problem, StepCount: 2,
				Step: models.Step{Index: 2, Description: "  ", Equation: "x = 2"}},
			"Step 2 of 2. x equals 2.",
		},
		{
			segment.Plan{Role: segment.RoleConclusion, Problem: problem, FinalAnswer: `\boxed{x = 2}`},
			"Great job! We've solved the problem step by step. The final answer is: the answer is x equals 2",
		},
	}
	for _, tt := range tests {
		if got := Script(tt.plan); got != tt.want {
			t.Errorf("Script(%s) = %q, want %q", tt.plan.Name(), got, tt.want)
		}
	}
}

func TestScriptClipsLongText(t *testing.T) {
	long := strings.Repeat("word ", 200)
	got := Script(segment.Plan{Role: segment.RoleStep, StepCount: 1, Step: models.Step{Index: 1, Description: long}})
	if len(got) > maxPart+40 {
		t.Errorf("narration not clipped: %d chars", len(got))
	}
	if strings.Contains(got, "wor.") {
		t.Errorf("clipped mid-word: %q", got[len(got)-20:])
	}
}
