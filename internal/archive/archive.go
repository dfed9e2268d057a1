// Package archive moves resolved alerts out of the store into
// zstd-compressed JSON lines files.
package archive

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"github.com/frostdev-ops/rm-alert-engine/internal/core/alerts"
)

// FileExtension is appended to archive file names
const FileExtension = ".jsonl.zst"

// Store lists and deletes persisted alerts
type Store interface {
	List(ctx context.Context, filter alerts.ListFilter) ([]*alerts.Alert, error)
	Delete(ctx context.Context, id string) error
}

// Result summarises one archive run
type Result struct {
	Archived     int       `json:"archived"`
	Deleted      int       `json:"deleted"`
	BytesWritten int64     `json:"bytes_written"`
	Cutoff       time.Time `json:"cutoff"`
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Export writes every alert resolved before cutoff to w, one JSON object per
// line, and then deletes the exported alerts from the store. Nothing is
// deleted unless the whole archive was written and flushed. With dryRun the
// archive is written but the store is left untouched.
func Export(ctx context.Context, store Store, cutoff time.Time, w io.Writer, dryRun bool, logger *logrus.Logger) (Result, error) {
	result := Result{Cutoff: cutoff}

	resolved, err := store.List(ctx, alerts.ListFilter{
		States:         []alerts.State{alerts.StateResolved},
		ResolvedBefore: &cutoff,
	})
	if err != nil {
		return result, fmt.Errorf("failed to list resolved alerts: %w", err)
	}

	counter := &countingWriter{w: w}
	zw, err := zstd.NewWriter(counter, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return result, fmt.Errorf("failed to create zstd writer: %w", err)
	}

	enc := json.NewEncoder(zw)
	for _, alert := range resolved {
		if err := enc.Encode(alert); err != nil {
			zw.Close()
			return result, fmt.Errorf("failed to write alert %s: %w", alert.ID, err)
		}
		result.Archived++
	}
	if err := zw.Close(); err != nil {
		return result, fmt.Errorf("failed to flush archive: %w", err)
	}
	result.BytesWritten = counter.n

	if dryRun {
		return result, nil
	}

	for _, alert := range resolved {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := store.Delete(ctx, alert.ID); err != nil && !errors.Is(err, alerts.ErrAlertNotFound) {
			return result, fmt.Errorf("failed to delete archived alert %s: %w", alert.ID, err)
		}
		result.Deleted++
	}

	logger.WithFields(logrus.Fields{
		"archived": result.Archived,
		"deleted":  result.Deleted,
		"bytes":    result.BytesWritten,
		"cutoff":   cutoff.Format(time.RFC3339),
	}).Info("Archived resolved alerts")

	return result, nil
}

// Read decodes an archive written by Export, calling fn for every alert
func Read(r io.Reader, fn func(*alerts.Alert) error) (int, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	defer zr.Close()

	scanner := bufio.NewScanner(zr)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	count := 0
	for scanner.Scan() {
		var alert alerts.Alert
		if err := json.Unmarshal(scanner.Bytes(), &alert); err != nil {
			return count, fmt.Errorf("line %d: %w", count+1, err)
		}
		if err := fn(&alert); err != nil {
			return count, err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read archive: %w", err)
	}
	return count, nil
}
