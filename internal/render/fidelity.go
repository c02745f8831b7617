package render

// Fidelity selects how much of each segment is drawn. Enhanced and Basic are
// the two presets the pipeline falls back through; both share one renderer.
type Fidelity struct {
	Name string

	Animate       bool // header slide/fade and decorative motion
	Decorations   bool // accent bars, background shapes, footer
	ProgressBar   bool // step progress across the top edge
	Explanations  bool // step explanation text under the equation
	Celebration   bool // closing badge on the conclusion
	MaxBodyLines  int
	AnalysisLimit int
}

var Enhanced = Fidelity{
	Name:          "enhanced",
	Animate:       true,
	Decorations:   true,
	ProgressBar:   true,
	Explanations:  true,
	Celebration:   true,
	MaxBodyLines:  6,
	AnalysisLimit: 5,
}

var Basic = Fidelity{
	Name:          "basic",
	MaxBodyLines:  5,
	AnalysisLimit: 3,
}
