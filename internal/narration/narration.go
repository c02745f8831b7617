// Package narration produces the spoken text for each segment and strips
// anything a speech engine would read out literally.
package narration

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/bobarin/mathcast/internal/segment"
)

// maxPart caps each user-supplied fragment so narration stays near the
// segment's on-screen time.
const maxPart = 240

// Script returns the sanitized narration for a plan.
func Script(p segment.Plan) string {
	var text string
	switch p.Role {
	case segment.RoleIntro:
		text = fmt.Sprintf("Welcome to the Math Problem Solver. Today we'll solve: %s", clip(p.Problem.OriginalText))
	case segment.RoleAnalysis:
		label := p.Problem.ProblemType.Label()
		text = fmt.Sprintf("This is %s %s problem with %s complexity. Let's break it down step by step.",
			article(label), label, p.Problem.Complexity)
	case segment.RoleStep:
		text = fmt.Sprintf("Step %d of %d.", p.Step.Index, p.StepCount)
		if desc := clip(p.Step.Description); desc != "" {
			text += " " + desc + "."
		}
		if eq := strings.TrimSpace(p.Step.Equation); eq != "" {
			text += " " + SpokenEquation(clip(eq)) + "."
		}
	case segment.RoleConclusion:
		answer := strings.TrimSpace(p.FinalAnswer)
		if answer == "" {
			text = "Great job! We've solved the problem step by step."
		} else {
			text = "Great job! We've solved the problem step by step. The final answer is: " + SpokenEquation(clip(answer))
		}
	}
	return Sanitize(text)
}

func article(word string) string {
	if word != "" && strings.ContainsRune("aeiouAEIOU", rune(word[0])) {
		return "an"
	}
	return "a"
}

// clip shortens s to maxPart runes at a word boundary.
func clip(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxPart {
		return s
	}
	r := []rune(s)[:maxPart]
	cut := string(r)
	if i := strings.LastIndexByte(cut, ' '); i > maxPart/2 {
		cut = cut[:i]
	}
	return cut
}

var operatorWords = []struct{ from, to string }{
	{"<=", " is less than or equal to "},
	{">=", " is greater than or equal to "},
	{"!=", " is not equal to "},
	{"=", " equals "},
	{"+", " plus "},
	{"*", " times "},
	{"-", " minus "},
	{"/", " divided by "},
	{"^", " to the power of "},
	{"<", " is less than "},
	{">", " is greater than "},
}

// SpokenEquation rewrites operators into words. It is applied to equation
// and answer fragments only, never to prose.
func SpokenEquation(eq string) string {
	eq = strings.ReplaceAll(eq, "−", "-")
	for _, op := range operatorWords {
		eq = strings.ReplaceAll(eq, op.from, op.to)
	}
	return collapseSpaces(eq)
}

var boxed = regexp.MustCompile(`\\boxed\s*\{([^{}]*)\}`)

var symbolWords = strings.NewReplacer(
	"√", " square root of ",
	"π", " pi ",
	"×", " times ",
	"÷", " divided by ",
	"±", " plus or minus ",
	"≤", " is less than or equal to ",
	"≥", " is greater than or equal to ",
	"≠", " is not equal to ",
	"≈", " is approximately ",
	"²", " squared",
	"³", " cubed",
	"∞", " infinity ",
	"=", " equals ",
	"^", " to the power of ",
	`\sqrt`, " square root of ",
	`\frac`, " fraction ",
	`\cdot`, " times ",
	`\times`, " times ",
	`\pi`, " pi ",
)

// markup characters that would be voiced literally.
var markup = strings.NewReplacer(
	"*", "",
	"_", " ",
	"#", "",
	"`", "",
	"~", "",
	"$", "",
	"\\", "",
	"{", "",
	"}", "",
	"[", "",
	"]", "",
	"|", "",
)

// Sanitize removes markup, expands the fixed symbol table and collapses
// whitespace. It is pure and idempotent on its own output.
func Sanitize(text string) string {
	text = boxed.ReplaceAllString(text, " the answer is $1 ")
	text = symbolWords.Replace(text)
	text = markup.Replace(text)
	return collapseSpaces(text)
}

func collapseSpaces(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	// Fields may leave " ." or " ," behind after replacements.
	s = strings.ReplaceAll(s, " .", ".")
	s = strings.ReplaceAll(s, " ,", ",")
	return s
}
