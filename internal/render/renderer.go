// Package render turns a segment plan and a time cursor into frames. One
// Renderer serves every role and both fidelity tiers; frames are a pure
// function of (plan, t) for a given format and fidelity.
package render

import (
	"fmt"
	"image/color"
	"math"
	"strings"
	"time"

	"github.com/bobarin/mathcast/internal/canvas"
	"github.com/bobarin/mathcast/internal/models"
	"github.com/bobarin/mathcast/internal/segment"
)

const (
	designWidth  = 1280.0
	designHeight = 720.0
)

// Renderer owns a canvas and font faces, so it is not safe for concurrent
// use. Create one per job attempt.
type Renderer struct {
	format   Format
	fidelity Fidelity
	palette  canvas.Palette
	canvas   *canvas.Canvas
	fonts    *canvas.FontSet
}

func New(format Format, fidelity Fidelity) (*Renderer, error) {
	if err := format.Validate(); err != nil {
		return nil, err
	}
	fonts, err := canvas.NewFontSet(format.Height)
	if err != nil {
		return nil, fmt.Errorf("failed to load fonts: %w", err)
	}
	return &Renderer{
		format:   format,
		fidelity: fidelity,
		palette:  canvas.DefaultPalette,
		canvas:   canvas.New(format.Width, format.Height),
		fonts:    fonts,
	}, nil
}

func (r *Renderer) Format() Format     { return r.format }
func (r *Renderer) Fidelity() Fidelity { return r.fidelity }

// Render emits ceil(D × fps) frames for the plan, in order.
func (r *Renderer) Render(p segment.Plan, emit func(*canvas.Frame) error) (int, error) {
	n := r.format.FrameCount(p.Duration)
	for i := 0; i < n; i++ {
		if err := emit(r.Frame(p, r.format.FrameTime(i))); err != nil {
			return i, err
		}
	}
	return n, nil
}

// Frame draws the plan at time t, clamped to [0, D).
func (r *Renderer) Frame(p segment.Plan, t time.Duration) *canvas.Frame {
	if t < 0 {
		t = 0
	}
	if p.Duration > 0 && t >= p.Duration {
		t = p.Duration - 1
	}
	s := newSchedule(p.Duration)

	r.canvas.Clear(r.palette.Background)
	if r.fidelity.Decorations {
		r.drawDecorations(p, t)
	}

	switch p.Role {
	case segment.RoleIntro:
		r.drawIntro(p, t, s)
	case segment.RoleAnalysis:
		r.drawAnalysis(p, t, s)
	case segment.RoleStep:
		r.drawStep(p, t, s)
	case segment.RoleConclusion:
		r.drawConclusion(p, t, s)
	}
	return r.canvas.Snapshot(t)
}

// schedule splits a segment into header, body-reveal and supplementary
// sub-intervals. The body finishes revealing well before D.
type schedule struct {
	bodyStart time.Duration
	bodyEnd   time.Duration
	duration  time.Duration
}

func newSchedule(d time.Duration) schedule {
	return schedule{
		bodyStart: d * 15 / 100,
		bodyEnd:   d * 75 / 100,
		duration:  d,
	}
}

func (s schedule) bodyWindow() time.Duration { return s.bodyEnd - s.bodyStart }

func (s schedule) inExtra(t time.Duration) bool { return t >= s.bodyEnd }

// Coordinates are authored against a 1280×720 layout and scaled.
func (r *Renderer) x(v float64) float64 { return v * float64(r.format.Width) / designWidth }
func (r *Renderer) y(v float64) float64 { return v * float64(r.format.Height) / designHeight }

func (r *Renderer) drawDecorations(p segment.Plan, t time.Duration) {
	c := r.canvas
	pal := r.palette

	// Slow breathing circles in the corners, phase derived from t only.
	phase := 2 * math.Pi * float64(t) / float64(4*time.Second)
	rad := r.y(70 + 8*math.Sin(phase))
	c.Circle(r.x(0), r.y(720), rad*2, canvas.WithAlpha(pal.Secondary, 0.08))
	c.Circle(r.x(1280), r.y(0), rad*1.5, canvas.WithAlpha(pal.Highlight, 0.12))

	c.Rect(0, 0, r.x(1280), r.y(6), pal.Secondary)
	c.Text("Math Problem Solver", r.x(40), r.y(700), r.fonts.Small, pal.Muted)
	label := p.Problem.ProblemType.Label()
	c.Text(label, r.x(1240)-c.Measure(label, r.fonts.Small), r.y(700), r.fonts.Small, pal.Muted)
}

// drawHeader draws the segment title. Enhanced slides it down and fades it
// in across the header window; Basic draws it in place from the first frame.
func (r *Renderer) drawHeader(title, subtitle string, col color.RGBA, t time.Duration, s schedule) {
	offset, alpha := 0.0, 1.0
	if r.fidelity.Animate {
		p := canvas.EaseOut(canvas.Progress(t, 0, s.bodyStart))
		offset = (1 - p) * r.y(-30)
		alpha = 0.15 + 0.85*p
	}
	r.canvas.TextCentered(title, r.x(640), r.y(85)+offset, r.fonts.Title, canvas.WithAlpha(col, alpha))
	if subtitle != "" {
		r.canvas.TextCentered(subtitle, r.x(640), r.y(140)+offset, r.fonts.Body, canvas.WithAlpha(r.palette.Secondary, alpha))
	}
}

// bodyLines wraps text to width and caps it at the tier's line budget.
func (r *Renderer) bodyLines(text string, width float64) []string {
	lines := r.canvas.Wrap(text, r.x(width), r.fonts.Body)
	return limitLines(lines, r.fidelity.MaxBodyLines)
}

func limitLines(lines []string, max int) []string {
	if max <= 0 || len(lines) <= max {
		return lines
	}
	out := append([]string(nil), lines[:max]...)
	out[max-1] = strings.TrimRight(out[max-1], " .,;:") + "..."
	return out
}

func (r *Renderer) drawIntro(p segment.Plan, t time.Duration, s schedule) {
	c := r.canvas
	pal := r.palette
	r.drawHeader("Math Problem Solver", "Today's problem: "+p.Problem.ProblemType.Label(), pal.Primary, t, s)

	if r.fidelity.Decorations {
		c.Box(r.x(140), r.y(185), r.x(1000), r.y(310), r.y(18), pal.StepBG, pal.Secondary, r.y(2))
	}
	lines := r.bodyLines(p.Problem.OriginalText, 920)
	shown := canvas.RevealLines(lines, t-s.bodyStart, s.bodyWindow())
	c.Lines(shown, r.x(180), r.y(245), c.LineHeight(r.fonts.Body, 1.5), r.fonts.Body, pal.Primary)

	if s.inExtra(t) {
		alpha := 1.0
		if r.fidelity.Animate {
			alpha = canvas.Progress(t, s.bodyEnd, s.bodyEnd+(s.duration-s.bodyEnd)/2)
		}
		badge := complexityColor(pal, p.Problem.Complexity)
		c.Box(r.x(460), r.y(540), r.x(360), r.y(56), r.y(28), canvas.WithAlpha(badge, alpha), nil, 0)
		c.TextCentered("Complexity: "+string(p.Problem.Complexity), r.x(640), r.y(566), r.fonts.Body, canvas.WithAlpha(pal.White, alpha))
	}
}

func (r *Renderer) drawAnalysis(p segment.Plan, t time.Duration, s schedule) {
	c := r.canvas
	pal := r.palette
	r.drawHeader("Problem Analysis & Strategy", "", pal.Primary, t, s)

	rows := AnalysisRows(p.Problem)
	if r.fidelity.AnalysisLimit > 0 && len(rows) > r.fidelity.AnalysisLimit {
		rows = rows[:r.fidelity.AnalysisLimit]
	}
	var lines []string
	for _, row := range rows {
		lines = append(lines, r.canvas.Wrap(row, r.x(1000), r.fonts.Body)...)
	}
	lines = limitLines(lines, r.fidelity.MaxBodyLines+1)

	lh := c.LineHeight(r.fonts.Body, 1.7)
	shown := canvas.RevealLines(lines, t-s.bodyStart, s.bodyWindow())
	for i, line := range shown {
		y := r.y(215) + float64(i)*lh
		if r.fidelity.Decorations {
			c.Circle(r.x(150), y-r.y(9), r.y(6), pal.Secondary)
		}
		c.Text(line, r.x(175), y, r.fonts.Body, pal.Primary)
	}

	if s.inExtra(t) && r.fidelity.Decorations {
		w := r.x(520) * canvas.EaseOut(canvas.Progress(t, s.bodyEnd, s.duration))
		c.Rect(r.x(640)-w/2, r.y(112), w, r.y(4), pal.Highlight)
	}
}

func (r *Renderer) drawStep(p segment.Plan, t time.Duration, s schedule) {
	c := r.canvas
	pal := r.palette

	if r.fidelity.ProgressBar && p.StepCount > 0 {
		done := float64(p.Step.Index-1) / float64(p.StepCount)
		if s.inExtra(t) {
			done += canvas.EaseOut(canvas.Progress(t, s.bodyEnd, s.duration)) / float64(p.StepCount)
		}
		c.ProgressBar(r.x(40), r.y(22), r.x(1200), r.y(12), done, pal.StepBG, pal.Success)
	}

	titleColor := pal.Primary
	if r.fidelity.Decorations {
		titleColor = pal.Accent
	}
	subtitle := ""
	if p.Placeholder {
		subtitle = "General method"
	}
	r.drawHeader(fmt.Sprintf("Step %d of %d", p.Step.Index, p.StepCount), subtitle, titleColor, t, s)

	desc := p.Step.Description
	if desc == "" {
		desc = "Work with the equation below"
	}
	lines := r.bodyLines(desc, 1000)
	lines = limitLines(lines, 3)
	shown := canvas.RevealLines(lines, t-s.bodyStart, s.bodyWindow())
	c.Lines(shown, r.x(140), r.y(215), c.LineHeight(r.fonts.Body, 1.5), r.fonts.Body, pal.Primary)

	if !s.inExtra(t) {
		return
	}
	if p.Step.Equation != "" {
		border, width := pal.Secondary, r.y(2)
		if r.fidelity.Animate {
			// Emphasis: the border thickens then settles.
			pulse := math.Sin(math.Pi * canvas.Progress(t, s.bodyEnd, s.duration))
			width = r.y(2 + 3*pulse)
			border = pal.Accent
		}
		c.Box(r.x(190), r.y(395), r.x(900), r.y(95), r.y(14), pal.EquationBG, border, width)
		eq := limitLines(r.canvas.Wrap(p.Step.Equation, r.x(860), r.fonts.Mono), 1)
		c.TextCentered(eq[0], r.x(640), r.y(442), r.fonts.Mono, pal.Primary)
	}
	if r.fidelity.Explanations && p.Step.Explanation != "" {
		ex := limitLines(r.canvas.Wrap(p.Step.Explanation, r.x(1000), r.fonts.Small), 2)
		c.Lines(ex, r.x(140), r.y(545), c.LineHeight(r.fonts.Small, 1.4), r.fonts.Small, pal.Muted)
	}
}

func (r *Renderer) drawConclusion(p segment.Plan, t time.Duration, s schedule) {
	c := r.canvas
	pal := r.palette
	r.drawHeader("Solution Complete", "", pal.Success, t, s)

	border := color.Color(nil)
	if r.fidelity.Decorations {
		border = pal.Highlight
	}
	c.Box(r.x(190), r.y(190), r.x(900), r.y(260), r.y(18), pal.StepBG, border, r.y(4))
	c.TextCentered("Final Answer", r.x(640), r.y(235), r.fonts.Heading, pal.Secondary)

	answer := strings.TrimSpace(p.FinalAnswer)
	if answer == "" {
		answer = "See the steps above"
	}
	lines := limitLines(r.canvas.Wrap(answer, r.x(840), r.fonts.Mono), 4)
	shown := canvas.RevealLines(lines, t-s.bodyStart, s.bodyWindow())
	lh := c.LineHeight(r.fonts.Mono, 1.4)
	for i, line := range shown {
		c.TextCentered(line, r.x(640), r.y(300)+float64(i)*lh, r.fonts.Mono, pal.Primary)
	}

	if s.inExtra(t) && r.fidelity.Celebration {
		k := canvas.EaseOut(canvas.Progress(t, s.bodyEnd, s.duration))
		c.Circle(r.x(640), r.y(545), r.y(30)*(0.6+0.4*k), pal.Success)
		c.Line(r.x(626), r.y(546), r.x(637), r.y(557), r.y(5), pal.White)
		c.Line(r.x(637), r.y(557), r.x(656), r.y(533), r.y(5), pal.White)
		c.TextCentered("Great job!", r.x(640), r.y(610), r.fonts.Heading, canvas.WithAlpha(pal.Success, k))
	}
}

func complexityColor(pal canvas.Palette, c models.Complexity) color.RGBA {
	switch c {
	case models.ComplexityBasic:
		return pal.Success
	case models.ComplexityIntermediate:
		return pal.Warning
	default:
		return pal.Accent
	}
}
