package media

import (
	"fmt"
	"os"
	"strings"
	"time"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// ASS caption track
//
// Narration has no word timestamps, so each segment's words are spread over
// the time its narration is audible, weighted by word length, then grouped
// into short chunks that are shown one at a time.
// ---------------------------------------------------------------------------

const (
	wordsPerChunk = 6

	captionFontName = "Noto Sans"

	// ASS colors are &HAABBGGRR.
	assColorWhite     = "&H00FFFFFF"
	assColorOutline   = "&H00503E2C" // #2c3e50
	assColorSemiBlack = "&H80000000"
)

// Word is one caption word with its display window.
type Word struct {
	Text  string
	Start time.Duration
	End   time.Duration
}

// SpreadWords distributes the words of text over [start, start+span).
func SpreadWords(text string, start, span time.Duration) []Word {
	fields := strings.Fields(text)
	if len(fields) == 0 || span <= 0 {
		return nil
	}
	total := 0
	for _, f := range fields {
		total += utf8.RuneCountInString(f) + 1
	}

	words := make([]Word, 0, len(fields))
	acc := 0
	for _, f := range fields {
		from := start + time.Duration(int64(span)*int64(acc)/int64(total))
		acc += utf8.RuneCountInString(f) + 1
		to := start + time.Duration(int64(span)*int64(acc)/int64(total))
		words = append(words, Word{Text: f, Start: from, End: to})
	}
	return words
}

// WriteASS writes a caption file sized for a width×height video.
func WriteASS(path string, words []Word, width, height int) error {
	if len(words) == 0 {
		return fmt.Errorf("no words to generate captions from")
	}

	fontSize := height / 20
	marginV := height / 24

	var sb strings.Builder
	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&sb, "PlayResX: %d\n", width)
	fmt.Fprintf(&sb, "PlayResY: %d\n", height)
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n\n")

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&sb, "Style: Default,%s,%d,%s,%s,%s,%s,-1,0,0,0,100,100,0,0,1,3,0,2,40,40,%d,1\n\n",
		captionFontName, fontSize, assColorWhite, assColorWhite, assColorOutline, assColorSemiBlack, marginV)

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
	for _, chunk := range chunkWords(words, wordsPerChunk) {
		texts := make([]string, len(chunk))
		for i, w := range chunk {
			texts[i] = escapeASS(w.Text)
		}
		fmt.Fprintf(&sb, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
			formatASSTime(chunk[0].Start), formatASSTime(chunk[len(chunk)-1].End), strings.Join(texts, " "))
	}

	if err := os.WriteFile(path, []byte(sb.String()), 0644); err != nil {
		return fmt.Errorf("failed to write caption file: %w", err)
	}
	return nil
}

// chunkWords groups words into chunks of up to size, breaking early at
// sentence ends.
func chunkWords(words []Word, size int) [][]Word {
	var chunks [][]Word
	var current []Word
	for _, w := range words {
		current = append(current, w)
		sentenceEnd := strings.ContainsAny(w.Text, ".!?:")
		if len(current) >= size || (sentenceEnd && len(current) >= 2) {
			chunks = append(chunks, current)
			current = nil
		}
	}
	if len(current) > 0 {
		chunks = append(chunks, current)
	}
	return chunks
}

func escapeASS(s string) string {
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	return strings.ReplaceAll(s, "\\", "/")
}

// formatASSTime renders H:MM:SS.CC.
func formatASSTime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	cs := int64(d / (10 * time.Millisecond))
	h := cs / 360000
	m := (cs / 6000) % 60
	s := (cs / 100) % 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs%100)
}
