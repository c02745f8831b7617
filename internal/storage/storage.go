// Package storage publishes finished videos to Supabase Storage.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/bobarin/mathcast/internal/logger"
)

const (
	// Upload timeout per attempt
	uploadTimeout = 180 * time.Second

	// Retry configuration
	maxRetries     = 4
	baseRetryDelay = 1 * time.Second
	maxRetryDelay  = 30 * time.Second

	videoContentType = "video/mp4"
)

type Storage struct {
	url        string
	serviceKey string
	Bucket     string
	client     *http.Client
	log        *logger.Logger

	retryBase time.Duration
}

func New(url, serviceKey, bucket string, log *logger.Logger) *Storage {
	return &Storage{
		url:        strings.TrimRight(url, "/"),
		serviceKey: serviceKey,
		Bucket:     bucket,
		log:        log,
		retryBase:  baseRetryDelay,
		client: &http.Client{
			Timeout: uploadTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Publish uploads a rendered video under the job's folder and returns its
// public URL.
func (s *Storage) Publish(ctx context.Context, jobID uuid.UUID, localPath string) (string, error) {
	objectPath := s.ObjectPath(jobID, filepath.Base(localPath))
	if err := s.UploadFile(ctx, objectPath, localPath, videoContentType); err != nil {
		return "", err
	}
	return s.PublicURL(objectPath), nil
}

// UploadFile streams a local file to Supabase Storage with retries and
// exponential backoff. The file is reopened for every attempt.
func (s *Storage) UploadFile(ctx context.Context, objectPath, localPath, contentType string) error {
	info, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", localPath, err)
	}
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.url, s.Bucket, objectPath)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := s.retryDelay(attempt)
			s.log.Warn("upload retry", "attempt", attempt, "max", maxRetries, "path", objectPath, "wait", delay)

			select {
			case <-ctx.Done():
				return fmt.Errorf("upload cancelled: %w", ctx.Err())
			case <-time.After(delay):
			}
		}

		retry, err := s.put(ctx, url, localPath, info.Size(), contentType)
		if err == nil {
			if attempt > 0 {
				s.log.Info("upload succeeded after retry", "attempt", attempt+1, "path", objectPath)
			}
			return nil
		}
		lastErr = err
		if !retry {
			return lastErr
		}
		s.log.Warn("upload attempt failed (retryable)", "attempt", attempt+1, "error", truncate(err.Error(), 200))
	}

	return fmt.Errorf("upload failed after %d attempts: %w", maxRetries+1, lastErr)
}

// put performs one upload attempt and reports whether a failure is worth
// retrying.
func (s *Storage) put(ctx context.Context, url, localPath string, size int64, contentType string) (bool, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return false, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	// Each attempt gets its own timeout, bounded by the caller's ctx
	uploadCtx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(uploadCtx, http.MethodPut, url, f)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	resp, err := s.client.Do(req)
	if err != nil {
		return isRetryableError(err), fmt.Errorf("failed to upload: %w", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return false, nil
	}
	return isRetryableStatus(resp.StatusCode), fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
}

// PublicURL returns the public URL for an object
func (s *Storage) PublicURL(objectPath string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.url, s.Bucket, objectPath)
}

// ObjectPath places a file under its job's folder
func (s *Storage) ObjectPath(jobID uuid.UUID, filename string) string {
	return path.Join("renders", jobID.String(), filename)
}

// retryDelay calculates exponential backoff with jitter: base * 2^attempt + random jitter
func (s *Storage) retryDelay(attempt int) time.Duration {
	delay := float64(s.retryBase) * math.Pow(2, float64(attempt-1))
	if delay > float64(maxRetryDelay) {
		delay = float64(maxRetryDelay)
	}
	// 0–25% jitter
	jitter := delay * 0.25 * rand.Float64()
	return time.Duration(delay + jitter)
}

// isRetryableError reports transport failures worth another attempt.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

func isRetryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, http.StatusRequestTimeout,
		http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
