package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ErrUpstreamData marks a problem/solution record that cannot be rendered.
// Submissions carrying such records are rejected before any work starts.
var ErrUpstreamData = errors.New("malformed upstream record")

// Enums
type ProblemType string

const (
	ProblemTypeArithmetic ProblemType = "arithmetic"
	ProblemTypeAlgebra    ProblemType = "algebra"
	ProblemTypeEquation   ProblemType = "equation"
	ProblemTypeQuadratic  ProblemType = "quadratic"
	ProblemTypeGeometry   ProblemType = "geometry"
	ProblemTypeCalculus   ProblemType = "calculus"
	ProblemTypeStatistics ProblemType = "statistics"
	ProblemTypeWord       ProblemType = "word_problem"
	ProblemTypeUnknown    ProblemType = "unknown"
)

var knownProblemTypes = map[ProblemType]bool{
	ProblemTypeArithmetic: true,
	ProblemTypeAlgebra:    true,
	ProblemTypeEquation:   true,
	ProblemTypeQuadratic:  true,
	ProblemTypeGeometry:   true,
	ProblemTypeCalculus:   true,
	ProblemTypeStatistics: true,
	ProblemTypeWord:       true,
	ProblemTypeUnknown:    true,
}

// Label is the human-readable form used on screen and in narration.
func (p ProblemType) Label() string {
	if p == "" {
		return "general"
	}
	return strings.ReplaceAll(string(p), "_", " ")
}

type Complexity string

const (
	ComplexityBasic        Complexity = "basic"
	ComplexityIntermediate Complexity = "intermediate"
	ComplexityAdvanced     Complexity = "advanced"
)

// ComplexityFor derives a complexity from the problem type when the parser
// did not supply one.
func ComplexityFor(p ProblemType) Complexity {
	switch p {
	case ProblemTypeArithmetic:
		return ComplexityBasic
	case ProblemTypeAlgebra, ProblemTypeEquation:
		return ComplexityIntermediate
	default:
		return ComplexityAdvanced
	}
}

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRendering JobStatus = "rendering"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// Records

// ProblemRecord is the parsed problem. Immutable once handed to the renderer.
type ProblemRecord struct {
	OriginalText string      `json:"original_text"`
	ProblemType  ProblemType `json:"problem_type"`
	Complexity   Complexity  `json:"complexity,omitempty"`
	Variables    []string    `json:"variables,omitempty"`
}

type Step struct {
	Index       int    `json:"index"` // 1-based
	Description string `json:"description"`
	Equation    string `json:"equation,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

type SolutionRecord struct {
	Steps       []Step `json:"steps"`
	FinalAnswer string `json:"final_answer"`
}

// Normalized fills the optional fields with their derived defaults.
func (p ProblemRecord) Normalized() ProblemRecord {
	if p.ProblemType == "" {
		p.ProblemType = ProblemTypeUnknown
	}
	if p.Complexity == "" {
		p.Complexity = ComplexityFor(p.ProblemType)
	}
	return p
}

func (p ProblemRecord) Validate() error {
	if strings.TrimSpace(p.OriginalText) == "" {
		return fmt.Errorf("%w: problem text is empty", ErrUpstreamData)
	}
	if p.ProblemType != "" && !knownProblemTypes[p.ProblemType] {
		return fmt.Errorf("%w: unknown problem type %q", ErrUpstreamData, p.ProblemType)
	}
	switch p.Complexity {
	case "", ComplexityBasic, ComplexityIntermediate, ComplexityAdvanced:
	default:
		return fmt.Errorf("%w: unknown complexity %q", ErrUpstreamData, p.Complexity)
	}
	return nil
}

// Validate checks that step indices are 1-based and dense. An empty step
// list is valid; placeholders are substituted downstream.
func (s SolutionRecord) Validate() error {
	for i, step := range s.Steps {
		if step.Index != i+1 {
			return fmt.Errorf("%w: step %d has index %d, want %d", ErrUpstreamData, i, step.Index, i+1)
		}
		if strings.TrimSpace(step.Description) == "" && strings.TrimSpace(step.Equation) == "" {
			return fmt.Errorf("%w: step %d has neither description nor equation", ErrUpstreamData, step.Index)
		}
	}
	return nil
}

// ValidateInput validates a problem/solution pair as submitted.
func ValidateInput(problem ProblemRecord, solution SolutionRecord) error {
	if err := problem.Validate(); err != nil {
		return err
	}
	return solution.Validate()
}

// External collaborators. Implementations live outside this module.

// Parser turns raw problem text (typed or OCR'd) into a ProblemRecord.
type Parser interface {
	Parse(ctx context.Context, rawText string) (*ProblemRecord, error)
}

// Solver produces the ordered steps and final answer for a problem.
type Solver interface {
	Solve(ctx context.Context, problem *ProblemRecord) (*SolutionRecord, error)
}

// RenderJob is the polled view of one submission.
type RenderJob struct {
	ID         uuid.UUID `json:"id"`
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	Message    string    `json:"message,omitempty"`
	Tier       string    `json:"tier,omitempty"`
	ResultPath string    `json:"result_path,omitempty"`
	PublicURL  string    `json:"public_url,omitempty"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DTOs for API requests/responses
type SubmitJobRequest struct {
	Problem  ProblemRecord  `json:"problem"`
	Solution SolutionRecord `json:"solution"`
}

type SubmitJobResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Status JobStatus `json:"status"`
}

// JobResponse omits the local result path; clients download through the API.
type JobResponse struct {
	ID          uuid.UUID `json:"id"`
	Status      JobStatus `json:"status"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message,omitempty"`
	Tier        string    `json:"tier,omitempty"`
	DownloadURL string    `json:"download_url,omitempty"`
	PublicURL   string    `json:"public_url,omitempty"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
