package report

import (
	"context"
	"encoding/json"
	"time"

	"vigil-governor/internal/model"
)

// Sink receives governor diagnostics. Artifacts are best-effort local files;
// the format is not a compatibility surface.
type Sink interface {
	WriteStatus(ctx context.Context, frame StatusFrame) error
	WriteEmergency(ctx context.Context, sample model.MemorySample, alerts []model.Alert) error
	WriteShutdown(ctx context.Context, frame ShutdownFrame) error
	Close(ctx context.Context) error
}

type StatusFrame struct {
	NodeID        string       `json:"node_id"`
	TimestampUnix int64        `json:"timestamp_unix"`
	Status        model.Status `json:"status"`
}

type EmergencyFrame struct {
	NodeID        string             `json:"node_id"`
	TimestampUnix int64              `json:"timestamp_unix"`
	Snapshot      model.MemorySample `json:"snapshot"`
	RecentAlerts  []model.Alert      `json:"recent_alerts"`
}

type ShutdownFrame struct {
	NodeID           string                      `json:"node_id"`
	TimestampUnix    int64                       `json:"timestamp_unix"`
	FinalStatus      model.Status                `json:"final_status"`
	ClosedProcesses  []model.ClosedProcessRecord `json:"closed_processes"`
	TrackedRemaining []model.ProcessInfo         `json:"tracked_remaining"`
}

func NewStatusFrame(nodeID string, status model.Status) StatusFrame {
	return StatusFrame{NodeID: nodeID, TimestampUnix: time.Now().UTC().Unix(), Status: status}
}

func NewEmergencyFrame(nodeID string, sample model.MemorySample, alerts []model.Alert) EmergencyFrame {
	return EmergencyFrame{
		NodeID:        nodeID,
		TimestampUnix: time.Now().UTC().Unix(),
		Snapshot:      sample,
		RecentAlerts:  append([]model.Alert(nil), alerts...),
	}
}

func encodeFrame(v any) ([]byte, error) {
	return json.Marshal(v)
}
