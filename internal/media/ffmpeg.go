// Package media drives the ffmpeg and ffprobe binaries: streaming rendered
// frames into an encoder, muxing the finished streams and probing results.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bobarin/mathcast/internal/canvas"
	"github.com/bobarin/mathcast/internal/logger"
)

// ErrEncoding covers any encoder, muxer or probe failure.
var ErrEncoding = errors.New("encoding failed")

// stderrTail is how much ffmpeg stderr is kept for error messages.
const stderrTail = 2048

// ---------------------------------------------------------------------------
// FFmpeg
// ---------------------------------------------------------------------------

type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	log         *logger.Logger
}

func New(log *logger.Logger) *FFmpeg {
	return NewWithBinaries("ffmpeg", "ffprobe", log)
}

func NewWithBinaries(ffmpegPath, ffprobePath string, log *logger.Logger) *FFmpeg {
	return &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath, log: log.With("component", "ffmpeg")}
}

// Available reports whether both binaries resolve on PATH.
func (f *FFmpeg) Available() error {
	if _, err := exec.LookPath(f.ffmpegPath); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	if _, err := exec.LookPath(f.ffprobePath); err != nil {
		return fmt.Errorf("ffprobe not found: %w", err)
	}
	return nil
}

type VideoSpec struct {
	Width  int
	Height int
	FPS    int
}

// VideoWriter consumes frames in order. Close finalizes the file; Abort
// stops the encoder and removes whatever it wrote.
type VideoWriter interface {
	WriteFrame(frame *canvas.Frame) error
	Close() error
	Abort()
}

// EncodeArgs reads raw RGBA frames from stdin and writes H.264.
func EncodeArgs(spec VideoSpec, outputPath string) []string {
	fps := strconv.Itoa(spec.FPS)
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgba",
		"-s", fmt.Sprintf("%dx%d", spec.Width, spec.Height),
		"-r", fps,
		"-i", "pipe:0",
		"-an",
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-tune", "stillimage",
		"-pix_fmt", "yuv420p",
		"-r", fps,
		"-y",
		outputPath,
	}
}

// OpenVideo starts an encoder writing to outputPath.
func (f *FFmpeg) OpenVideo(ctx context.Context, outputPath string, spec VideoSpec) (VideoWriter, error) {
	cmd := exec.CommandContext(ctx, f.ffmpegPath, EncodeArgs(spec, outputPath)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open encoder stdin: %v", ErrEncoding, err)
	}
	tail := &tailBuffer{max: stderrTail}
	cmd.Stderr = tail

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: failed to start encoder: %v", ErrEncoding, err)
	}
	f.log.Debug("encoder started", "output", outputPath, "size", fmt.Sprintf("%dx%d", spec.Width, spec.Height), "fps", spec.FPS)

	return &pipeWriter{cmd: cmd, stdin: stdin, stderr: tail, spec: spec, path: outputPath}, nil
}

type pipeWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	spec   VideoSpec
	path   string
	frames int
	done   bool
}

func (w *pipeWriter) WriteFrame(frame *canvas.Frame) error {
	if w.done {
		return fmt.Errorf("%w: write after close", ErrEncoding)
	}
	if frame.Width != w.spec.Width || frame.Height != w.spec.Height || len(frame.Pix) != 4*w.spec.Width*w.spec.Height {
		return fmt.Errorf("%w: frame %dx%d does not match encoder %dx%d",
			ErrEncoding, frame.Width, frame.Height, w.spec.Width, w.spec.Height)
	}
	if _, err := w.stdin.Write(frame.Pix); err != nil {
		return fmt.Errorf("%w: frame %d: %v: %s", ErrEncoding, w.frames, err, w.stderr.String())
	}
	w.frames++
	return nil
}

func (w *pipeWriter) Close() error {
	if w.done {
		return nil
	}
	w.done = true
	if err := w.stdin.Close(); err != nil {
		_ = w.cmd.Wait()
		return fmt.Errorf("%w: failed to close encoder input: %v", ErrEncoding, err)
	}
	if err := w.cmd.Wait(); err != nil {
		return fmt.Errorf("%w: encoder exited after %d frames: %v: %s", ErrEncoding, w.frames, err, w.stderr.String())
	}
	return nil
}

func (w *pipeWriter) Abort() {
	if w.done {
		os.Remove(w.path)
		return
	}
	w.done = true
	w.stdin.Close()
	if w.cmd.Process != nil {
		w.cmd.Process.Kill()
	}
	_ = w.cmd.Wait()
	os.Remove(w.path)
}

// ---------------------------------------------------------------------------
// Mux
// ---------------------------------------------------------------------------

// MuxInput names the streams to combine. AudioPath empty selects the
// video-only path; captions and music are only used alongside audio.
type MuxInput struct {
	VideoPath    string
	AudioPath    string
	CaptionsPath string
	MusicPath    string
	OutputPath   string
	Duration     time.Duration
}

const musicVolume = 0.12

// MuxArgs builds the ffmpeg arguments for in. The video stream is copied,
// never re-encoded.
func MuxArgs(in MuxInput) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-i", in.VideoPath}

	if in.AudioPath == "" {
		args = append(args, "-map", "0:v", "-c:v", "copy", "-an")
		return append(args, finishArgs(in)...)
	}

	args = append(args, "-i", in.AudioPath)
	next := 2
	musicIdx, capIdx := -1, -1
	if in.MusicPath != "" {
		args = append(args, "-stream_loop", "-1", "-i", in.MusicPath)
		musicIdx = next
		next++
	}
	if in.CaptionsPath != "" {
		args = append(args, "-i", in.CaptionsPath)
		capIdx = next
	}

	args = append(args, "-map", "0:v")
	if musicIdx >= 0 {
		filter := fmt.Sprintf("[1:a]volume=1.0[narration];[%d:a]volume=%.2f[music];[narration][music]amix=inputs=2:duration=first:dropout_transition=0:normalize=0[aout]",
			musicIdx, musicVolume)
		args = append(args, "-filter_complex", filter, "-map", "[aout]")
	} else {
		args = append(args, "-map", "1:a")
	}
	if capIdx >= 0 {
		args = append(args, "-map", fmt.Sprintf("%d:s", capIdx), "-c:s", "mov_text", "-metadata:s:s:0", "language=eng")
	}
	args = append(args, "-c:v", "copy", "-c:a", "aac", "-b:a", "192k")
	return append(args, finishArgs(in)...)
}

func finishArgs(in MuxInput) []string {
	var args []string
	if in.Duration > 0 {
		args = append(args, "-t", formatSeconds(in.Duration))
	}
	return append(args, "-movflags", "+faststart", "-y", in.OutputPath)
}

// Mux writes in.OutputPath. On failure any partial output is removed.
func (f *FFmpeg) Mux(ctx context.Context, in MuxInput) error {
	args := MuxArgs(in)
	f.log.Debug("muxing", "output", in.OutputPath, "audio", in.AudioPath != "", "captions", in.CaptionsPath != "", "music", in.MusicPath != "")

	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	tail := &tailBuffer{max: stderrTail}
	cmd.Stderr = tail
	if err := cmd.Run(); err != nil {
		os.Remove(in.OutputPath)
		return fmt.Errorf("%w: mux failed: %v: %s", ErrEncoding, err, tail.String())
	}
	return nil
}

// ---------------------------------------------------------------------------
// Probe
// ---------------------------------------------------------------------------

func ProbeArgs(path string) []string {
	return []string{
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	}
}

// ProbeDuration returns the container duration reported by ffprobe.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, f.ffprobePath, ProbeArgs(path)...)
	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("%w: ffprobe failed: %v", ErrEncoding, err)
	}
	return parseProbeDuration(string(output))
}

func parseProbeDuration(s string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(secs) || secs < 0 {
		return 0, fmt.Errorf("%w: unparseable duration %q", ErrEncoding, strings.TrimSpace(s))
	}
	return time.Duration(math.Round(secs * float64(time.Second))), nil
}

// VerifyDuration fails with ErrEncoding when got and want differ by more
// than tolerance.
func VerifyDuration(got, want, tolerance time.Duration) error {
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	if diff > tolerance {
		return fmt.Errorf("%w: output is %v, timeline is %v", ErrEncoding, got, want)
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
	max int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if len(t.buf) > t.max {
		t.buf = t.buf[len(t.buf)-t.max:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
