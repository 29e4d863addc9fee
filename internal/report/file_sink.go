package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vigil-governor/internal/model"
)

// FileSink writes frames into a report directory: a rolling status file,
// timestamped emergency snapshots, and a final shutdown report.
type FileSink struct {
	mu     sync.Mutex
	dir    string
	nodeID string
	logger *slog.Logger
}

func NewFileSink(dir, nodeID string, logger *slog.Logger) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create report dir %s: %w", dir, err)
	}
	return &FileSink{dir: dir, nodeID: nodeID, logger: logger}, nil
}

func (s *FileSink) WriteStatus(ctx context.Context, frame StatusFrame) error {
	return s.writeFile("status.json", frame)
}

func (s *FileSink) WriteEmergency(ctx context.Context, sample model.MemorySample, alerts []model.Alert) error {
	frame := NewEmergencyFrame(s.nodeID, sample, alerts)
	name := fmt.Sprintf("emergency-%s.json", time.Now().UTC().Format("20060102T150405"))
	return s.writeFile(name, frame)
}

func (s *FileSink) WriteShutdown(ctx context.Context, frame ShutdownFrame) error {
	return s.writeFile("shutdown.json", frame)
}

func (s *FileSink) Close(ctx context.Context) error {
	return nil
}

// writeFile writes atomically via a temp file so readers never see a torn
// report.
func (s *FileSink) writeFile(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := encodeFrame(v)
	if err != nil {
		return fmt.Errorf("encode report %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publish report %s: %w", name, err)
	}
	return nil
}
