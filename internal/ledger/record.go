package ledger

import (
	"context"
	"fmt"
)

// Kind distinguishes run submissions from merge submissions.
type Kind string

const (
	KindRun   Kind = "run"
	KindMerge Kind = "merge"
)

// Status is the outcome of one run in a session.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusDryRun    Status = "dry_run"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
	StatusRejected  Status = "rejected"
)

// Outcome is what happened to one run (and merge stage) in a session.
type Outcome struct {
	SessionID      string `json:"session_id"`
	Kind           Kind   `json:"kind"`
	Run            int    `json:"run"`
	Stage          int    `json:"stage,omitempty"`
	Chunks         int    `json:"chunks,omitempty"`
	EventsPerChunk int    `json:"events_per_chunk,omitempty"`
	Request        string `json:"request,omitempty"`
	JobID          string `json:"job_id,omitempty"`
	Status         Status `json:"status"`
	Message        string `json:"message,omitempty"`
	Seq            int64  `json:"seq"`
}

// Recorder receives outcomes as orchestrators produce them.
type Recorder interface {
	Record(ctx context.Context, o Outcome) error
}

type discard struct{}

func (discard) Record(context.Context, Outcome) error { return nil }

// Discard is a Recorder that drops every outcome.
var Discard Recorder = discard{}

// Session is an open ledger session. It implements Recorder.
type Session struct {
	ID        string `json:"id"`
	Mode      string `json:"mode"`
	DryRun    bool   `json:"dry_run"`
	RemoteDir string `json:"remote_dir,omitempty"`
	Seq       int64  `json:"seq"`

	ledger *Ledger
}

// StartSession records a new session and returns it.
func (l *Ledger) StartSession(ctx context.Context, mode string, dryRun bool, remoteDir string) (*Session, error) {
	s := &Session{
		ID:        l.ids.Generate(),
		Mode:      mode,
		DryRun:    dryRun,
		RemoteDir: remoteDir,
		Seq:       l.clock.Next(),
		ledger:    l,
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO sessions (id, mode, dry_run, remote_dir, seq)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, s.ID, s.Mode, boolToInt(s.DryRun), s.RemoteDir, s.Seq)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	return s, nil
}

// Record implements Recorder. The outcome is attached to the session;
// recording the same (kind, run, stage) again is ignored.
func (s *Session) Record(ctx context.Context, o Outcome) error {
	o.SessionID = s.ID
	return s.ledger.write(ctx, o)
}

func (l *Ledger) write(ctx context.Context, o Outcome) error {
	if o.Kind == "" {
		o.Kind = KindRun
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO outcomes
		(session_id, kind, run, stage, chunks, events_per_chunk, request, job_id, status, message, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, kind, run, stage) DO NOTHING
	`,
		o.SessionID,
		string(o.Kind),
		o.Run,
		o.Stage,
		o.Chunks,
		o.EventsPerChunk,
		o.Request,
		o.JobID,
		string(o.Status),
		o.Message,
		l.clock.Next(),
	)
	if err != nil {
		return fmt.Errorf("write outcome: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
