// Package publisher defines the downstream notification interface and the
// adapter that reports completed sessions through it.
package publisher

import (
	"context"

	"github.com/sugetang/redharvest/internal/harvest"
)

// Publisher sends one payload downstream and returns a message id.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// SessionEvent is the summary published when a session completes.
type SessionEvent struct {
	SessionID    string `json:"session_id"`
	SearchTerm   string `json:"search_term"`
	StopReason   string `json:"stop_reason"`
	Processed    int    `json:"processed"`
	ArtifactPath string `json:"artifact_path"`
}

// Notifier adapts a Publisher to the session's completion hook.
type Notifier struct {
	pub Publisher
}

// NewNotifier wraps a publisher.
func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{pub: pub}
}

// SessionCompleted publishes the session summary.
func (n *Notifier) SessionCompleted(ctx context.Context, res harvest.Result) error {
	_, err := n.pub.Publish(ctx, SessionEvent{
		SessionID:    res.SessionID,
		SearchTerm:   res.SearchTerm,
		StopReason:   string(res.StopReason),
		Processed:    res.Processed,
		ArtifactPath: res.ArtifactPath,
	})
	return err
}
