package parkcluster

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// AuditLevel represents the severity recorded in the audit trail.
type AuditLevel string

const (
	AuditLevelInfo  AuditLevel = "info"
	AuditLevelWarn  AuditLevel = "warn"
	AuditLevelError AuditLevel = "error"
)

// AuditLog is one structured entry describing a cluster-significant event:
// a leader election, a heartbeat loss, a consensus decision, a malformed
// message drop. It is never persisted by this module on its own behalf —
// the document store is an out-of-scope collaborator — but a sink can be
// installed by the embedding process (e.g. the Data View's SQLite handle)
// to retain it.
type AuditLog struct {
	Component  string         `json:"component"`
	Action     string         `json:"action"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Fields     map[string]any `json:"fields,omitempty"`
	RoundID    string         `json:"round_id,omitempty"`
	NodeID     string         `json:"node_id"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// AuditSink persists AuditLog entries. Optional: RecordAudit works fine with
// none installed, logging through slog alone.
type AuditSink interface {
	AppendAudit(entry *AuditLog) error
}

var (
	auditSinkMu sync.RWMutex
	auditSink   AuditSink

	nodeMetaMu sync.RWMutex
	nodeIDMeta string
)

// SetAuditSink installs the sink that will persist audit events, in addition
// to the structured logger which always receives them.
func SetAuditSink(sink AuditSink) {
	auditSinkMu.Lock()
	defer auditSinkMu.Unlock()
	auditSink = sink
}

// SetNodeMetadata stores the node identifier attached to every audit entry.
func SetNodeMetadata(id string) {
	nodeMetaMu.Lock()
	defer nodeMetaMu.Unlock()
	nodeIDMeta = id
}

func getNodeIDMeta() string {
	nodeMetaMu.RLock()
	defer nodeMetaMu.RUnlock()
	return nodeIDMeta
}

// RecordAudit mirrors a structured event to the logger and, if a sink is
// installed, persists it.
func RecordAudit(ctx context.Context, level AuditLevel, component, action, message string, fields map[string]any) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, roundID := WithRequestID(ctx)

	entry := &AuditLog{
		Component:  component,
		Action:     action,
		Level:      string(level),
		Message:    message,
		Fields:     fields,
		RoundID:    roundID,
		NodeID:     getNodeIDMeta(),
		OccurredAt: time.Now(),
	}

	auditSinkMu.RLock()
	sink := auditSink
	auditSinkMu.RUnlock()
	if sink != nil {
		if err := sink.AppendAudit(entry); err != nil {
			Logger().Warn("audit_append_failed", "err", err, "component", component, "action", action)
		}
	}

	payload, _ := json.Marshal(fields)
	Logger().Info("audit", "component", component, "action", action, "level", level,
		"message", message, "round_id", roundID, "fields", string(payload))
}
