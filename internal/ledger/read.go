package ledger

import (
	"context"
	"database/sql"
	"fmt"
)

// Submitted reports whether run has a real (non dry-run) submission in any
// session.
func (l *Ledger) Submitted(ctx context.Context, run int) (bool, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM outcomes
		WHERE kind = ? AND run = ? AND status = ?
	`, string(KindRun), run, string(StatusSubmitted)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("read submitted: %w", err)
	}
	return n > 0, nil
}

// Sessions returns every session, oldest first.
func (l *Ledger) Sessions(ctx context.Context) ([]Session, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, mode, dry_run, remote_dir, seq FROM sessions
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("read sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var s Session
		var dry int
		if err := rows.Scan(&s.ID, &s.Mode, &dry, &s.RemoteDir, &s.Seq); err != nil {
			return nil, fmt.Errorf("read sessions: %w", err)
		}
		s.DryRun = dry != 0
		s.ledger = l
		out = append(out, s)
	}
	return out, rows.Err()
}

// Outcomes returns the outcomes of a session in recording order.
func (l *Ledger) Outcomes(ctx context.Context, sessionID string) ([]Outcome, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT session_id, kind, run, stage, chunks, events_per_chunk, request, job_id, status, message, seq
		FROM outcomes WHERE session_id = ?
		ORDER BY seq ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("read outcomes: %w", err)
	}
	return scanOutcomes(rows)
}

// RunHistory returns every outcome recorded for run, oldest first.
func (l *Ledger) RunHistory(ctx context.Context, run int) ([]Outcome, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT session_id, kind, run, stage, chunks, events_per_chunk, request, job_id, status, message, seq
		FROM outcomes WHERE run = ?
		ORDER BY seq ASC
	`, run)
	if err != nil {
		return nil, fmt.Errorf("read run history: %w", err)
	}
	return scanOutcomes(rows)
}

func scanOutcomes(rows *sql.Rows) ([]Outcome, error) {
	defer rows.Close()
	var out []Outcome
	for rows.Next() {
		var o Outcome
		var kind, status string
		if err := rows.Scan(&o.SessionID, &kind, &o.Run, &o.Stage, &o.Chunks, &o.EventsPerChunk,
			&o.Request, &o.JobID, &status, &o.Message, &o.Seq); err != nil {
			return nil, fmt.Errorf("scan outcome: %w", err)
		}
		o.Kind = Kind(kind)
		o.Status = Status(status)
		out = append(out, o)
	}
	return out, rows.Err()
}
