package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/mathcast/internal/logger"
)

func writeVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "solution_abc.mp4")
	if err := os.WriteFile(path, []byte("fake mp4 payload"), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPublish(t *testing.T) {
	jobID := uuid.New()
	var gotPath, gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := New(srv.URL+"/", "service-key", "videos", logger.Nop())
	url, err := s.Publish(context.Background(), jobID, writeVideo(t))
	if err != nil {
		t.Fatal(err)
	}

	wantObject := "renders/" + jobID.String() + "/solution_abc.mp4"
	if gotPath != "/storage/v1/object/videos/"+wantObject {
		t.Errorf("unexpected upload path %s", gotPath)
	}
	if gotAuth != "Bearer service-key" || gotBody != "fake mp4 payload" {
		t.Errorf("unexpected request auth=%q body=%q", gotAuth, gotBody)
	}
	if url != srv.URL+"/storage/v1/object/public/videos/"+wantObject {
		t.Errorf("unexpected public URL %s", url)
	}
}

func TestUploadRetriesTransientStatus(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if string(b) != "fake mp4 payload" {
			t.Errorf("retry sent a short body: %q", b)
		}
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	s := New(srv.URL, "k", "videos", logger.Nop())
	s.retryBase = time.Millisecond
	if _, err := s.Publish(context.Background(), uuid.New(), writeVideo(t)); err != nil {
		t.Fatal(err)
	}
	if n := atomic.LoadInt32(&calls); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestUploadDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("bad key"))
	}))
	defer srv.Close()

	s := New(srv.URL, "k", "videos", logger.Nop())
	s.retryBase = time.Millisecond
	_, err := s.Publish(context.Background(), uuid.New(), writeVideo(t))
	if err == nil || !strings.Contains(err.Error(), "403") {
		t.Fatalf("expected 403 error, got %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("expected a single attempt, got %d", n)
	}
}

func TestPublishMissingFile(t *testing.T) {
	s := New("http://127.0.0.1:1", "k", "videos", logger.Nop())
	if _, err := s.Publish(context.Background(), uuid.New(), "/nonexistent/video.mp4"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRetryDelayBounds(t *testing.T) {
	s := New("http://x", "k", "b", logger.Nop())
	for attempt := 1; attempt <= 10; attempt++ {
		d := s.retryDelay(attempt)
		if d < baseRetryDelay || d > maxRetryDelay+maxRetryDelay/4 {
			t.Errorf("attempt %d: delay %v out of bounds", attempt, d)
		}
	}
}

func TestRetryClassification(t *testing.T) {
	if !isRetryableStatus(http.StatusServiceUnavailable) || isRetryableStatus(http.StatusForbidden) {
		t.Error("unexpected status classification")
	}
	if !isRetryableError(fmt.Errorf("put: %w", io.ErrUnexpectedEOF)) {
		t.Error("unexpected EOF should be retried")
	}
	if isRetryableError(errors.New("unsupported protocol scheme")) {
		t.Error("configuration errors should not be retried")
	}
}
