package render

import (
	"fmt"
	"strings"

	"github.com/bobarin/mathcast/internal/models"
)

// Strategy names the solving approach shown on the analysis panel.
func Strategy(p models.ProblemType) string {
	switch p {
	case models.ProblemTypeArithmetic:
		return "Apply the order of operations"
	case models.ProblemTypeQuadratic:
		return "Factor or apply the quadratic formula"
	case models.ProblemTypeGeometry:
		return "Apply geometric relationships and formulas"
	case models.ProblemTypeCalculus:
		return "Apply differentiation and integration rules"
	case models.ProblemTypeStatistics:
		return "Summarize and analyze the data"
	case models.ProblemTypeWord:
		return "Translate the words into equations"
	default:
		return "Step-by-step algebraic manipulation"
	}
}

// AnalysisRows are the panel rows, most important first.
func AnalysisRows(p models.ProblemRecord) []string {
	p = p.Normalized()
	vars := fmt.Sprintf("%d", len(p.Variables))
	if len(p.Variables) > 0 {
		vars += " (" + strings.Join(p.Variables, ", ") + ")"
	}
	return []string{
		"Problem Type: " + p.ProblemType.Label(),
		"Complexity Level: " + string(p.Complexity),
		"Variables Identified: " + vars,
		"Solution Strategy: " + Strategy(p.ProblemType),
		"Key Concepts: Mathematical reasoning and problem-solving",
	}
}
