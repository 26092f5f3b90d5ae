// Package harvest implements the crawl session: candidate selection and
// dedup, drift detection and recovery, per-field extraction, and hand-off of
// harvested units to the buffered store.
package harvest

import (
	"context"
	"regexp"
	"time"
)

// MediaType classifies the unit's media payload.
type MediaType string

// Supported media types.
const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// Comment is one rendered comment. Children holds replies; replies never
// nest deeper than one level below a top-level comment.
type Comment struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	LikeCount int       `json:"like_count"`
	Children  []Comment `json:"children"`
}

// ContentUnit is one harvested item. It is created once, fully populated
// during a single extraction pass, and immutable afterwards. Fields that
// failed extraction carry their zero value, never an absent key.
type ContentUnit struct {
	ID            string    `json:"id"`
	SourceURL     string    `json:"source_url"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	PublishDate   string    `json:"publish_date"`
	MediaType     MediaType `json:"media_type"`
	ImageRefs     []string  `json:"image_refs"`
	VideoRef      string    `json:"video_ref"`
	VideoBlobURI  string    `json:"video_blob_uri,omitempty"`
	Comments      []Comment `json:"comments"`
	HarvestedAt   time.Time `json:"harvested_at"`
	SearchTerm    string    `json:"search_term"`
}

// Candidate is one unit visible in the results listing.
type Candidate struct {
	// ID is the stable identifier parsed from the unit's canonical address.
	ID string
	// Href is the full address including the session-scoped query fragments
	// needed to re-resolve the unit later (e.g. xsec_token).
	Href string
}

// StopReason explains why a session terminated.
type StopReason string

// Session stop reasons reported to the operator.
const (
	StopQuotaReached  StopReason = "quota_reached"
	StopExhausted     StopReason = "exhausted"
	StopFatalDrift    StopReason = "fatal_drift"
	StopAccessBlocked StopReason = "access_blocked"
	StopCanceled      StopReason = "canceled"
)

// State names a position in the session state machine.
type State string

// Session states.
const (
	StateSearching  State = "searching"
	StateSelecting  State = "selecting"
	StateOpening    State = "opening"
	StateExtracting State = "extracting"
	StateRecording  State = "recording"
	StateRecovering State = "recovering"
	StateCompleted  State = "completed"
)

// Result is the terminal report of one session.
type Result struct {
	SessionID     string         `json:"session_id"`
	SearchTerm    string         `json:"search_term"`
	StopReason    StopReason     `json:"stop_reason"`
	Processed     int            `json:"processed"`
	FieldFailures map[string]int `json:"field_failures"`
	ArtifactPath  string         `json:"artifact_path"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
}

// Snapshot is a point-in-time view of a running session, served to the
// operator status endpoint.
type Snapshot struct {
	SessionID     string         `json:"session_id"`
	SearchTerm    string         `json:"search_term"`
	State         State          `json:"state"`
	Processed     int            `json:"processed"`
	EmptyScans    int            `json:"empty_scans"`
	FieldFailures map[string]int `json:"field_failures"`
}

// Browser abstracts the authenticated results surface the session drives.
// Exactly one caller uses it at a time.
type Browser interface {
	Location(ctx context.Context) (string, error)
	NavigateHome(ctx context.Context) error
	Search(ctx context.Context, term string) error
	Candidates(ctx context.Context, limit int) ([]Candidate, error)
	OpenCandidate(ctx context.Context, cand Candidate) error
	CloseDetail(ctx context.Context) error
	ScrollResults(ctx context.Context, pixels int) error
}

// DetailReader is the view of an open detail page the extractor reads from.
type DetailReader interface {
	Location(ctx context.Context) (string, error)
	Text(ctx context.Context, sel string) (string, error)
	HTML(ctx context.Context, sel string) (string, error)
	IsVideo(ctx context.Context) (bool, error)
	ScrollComments(ctx context.Context) error
	ExpandReplies(ctx context.Context) (int, error)
}

// Recorder accepts finished units for durable persistence.
type Recorder interface {
	Append(unit ContentUnit) error
}

// Store is the durable sink for finished units. Close forces a final flush;
// the session runs it on every exit path.
type Store interface {
	Recorder
	Close() error
}

// VisitedSet tracks unit ids already processed. It grows monotonically and
// is scoped to one session unless a persistent backend is configured.
type VisitedSet interface {
	// Seen reports whether the id was marked before.
	Seen(ctx context.Context, id string) (bool, error)
	// Mark records the id and reports whether it was new.
	Mark(ctx context.Context, id string) (bool, error)
}

// CompletionNotifier receives the terminal report of a session. Failures are
// logged by the session, never fatal.
type CompletionNotifier interface {
	SessionCompleted(ctx context.Context, res Result) error
}

var noteIDPattern = regexp.MustCompile(`/explore/([0-9a-f]+)`)

// NoteIDFromURL extracts the stable unit identifier from a canonical unit
// address. It returns an empty string when the address does not resolve to a
// unit.
func NoteIDFromURL(raw string) string {
	m := noteIDPattern.FindStringSubmatch(raw)
	if m == nil {
		return ""
	}
	return m[1]
}
