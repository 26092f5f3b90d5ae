package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sugetang/redharvest/internal/harvest"
)

// Selectors for the target application's rendered structure. The platform
// ships layout changes without notice; keeping these in one place makes the
// inevitable updates cheap.
const (
	selSearchInput = "#search-input"
	selNoteCard    = "section.note-item"
	selDetailMask  = ".note-detail-mask"
	selDetailClose = ".note-detail-mask .close-circle"
)

const candidateHrefsJS = `
(() => {
	const out = [];
	document.querySelectorAll('section.note-item a[href*="/explore/"]').forEach(a => {
		if (a.href) out.push(a.href);
	});
	return out;
})()`

const scrollCommentsJS = `
(() => {
	const containers = [
		document.querySelector('.note-detail-mask .interaction-container'),
		document.querySelector('.note-detail-mask .note-scroller'),
		document.querySelector('.note-detail-mask .right-container')
	];
	for (const c of containers) {
		if (c && c.scrollHeight > c.clientHeight) {
			c.scrollBy({top: 500, behavior: 'smooth'});
			return true;
		}
	}
	return false;
})()`

const expandRepliesJS = `
(() => {
	let count = 0;
	document.querySelectorAll('.note-detail-mask .show-more').forEach(btn => {
		if (btn.textContent.includes('展开') && btn.textContent.includes('回复')) {
			btn.click();
			count++;
		}
	});
	return count;
})()`

const isVideoJS = `
(() => {
	const el = document.querySelector('#noteContainer, [data-type="video"]');
	return !!el && el.getAttribute('data-type') === 'video';
})()`

// DriverConfig carries the navigation anchors for the target application.
type DriverConfig struct {
	BaseURL      string
	ResultsRoute string
	DetailWait   time.Duration
}

// Driver turns the low-level surface into the domain operations the session
// and extractor consume.
type Driver struct {
	surface *Surface
	cfg     DriverConfig
	logger  *zap.Logger
}

// NewDriver wires a Driver over an attached surface.
func NewDriver(surface *Surface, cfg DriverConfig, logger *zap.Logger) *Driver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DetailWait <= 0 {
		cfg.DetailWait = 5 * time.Second
	}
	return &Driver{surface: surface, cfg: cfg, logger: logger}
}

// Surface exposes the underlying surface so the signing client can borrow
// its Evaluate and Cookies capabilities.
func (d *Driver) Surface() *Surface {
	return d.surface
}

// Location returns the current page URL.
func (d *Driver) Location(ctx context.Context) (string, error) {
	return d.surface.Location(ctx)
}

// NavigateHome loads the application landing page.
func (d *Driver) NavigateHome(ctx context.Context) error {
	return d.surface.Navigate(ctx, d.cfg.BaseURL+"/explore")
}

// Search types the term into the search box and submits it, then waits for
// the result listing to render.
func (d *Driver) Search(ctx context.Context, term string) error {
	loc, err := d.surface.Location(ctx)
	if err != nil {
		return fmt.Errorf("search precheck: %w", err)
	}
	if !strings.Contains(loc, hostOf(d.cfg.BaseURL)) || strings.Contains(loc, d.cfg.ResultsRoute) {
		if err := d.NavigateHome(ctx); err != nil {
			return fmt.Errorf("search home navigation: %w", err)
		}
	}
	if err := d.surface.Click(ctx, selSearchInput); err != nil {
		return fmt.Errorf("focus search box: %w", err)
	}
	if err := d.surface.TypeHumanlike(ctx, selSearchInput, term); err != nil {
		return fmt.Errorf("type search term: %w", err)
	}
	if err := d.surface.PressEnter(ctx); err != nil {
		return fmt.Errorf("submit search: %w", err)
	}
	if err := d.surface.WaitVisible(ctx, selNoteCard, 0); err != nil {
		return fmt.Errorf("wait search results: %w", err)
	}
	return nil
}

// Candidates reads the visible result cards in rendered order, at most limit.
func (d *Driver) Candidates(ctx context.Context, limit int) ([]harvest.Candidate, error) {
	var hrefs []string
	if err := d.surface.Evaluate(ctx, candidateHrefsJS, &hrefs); err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	cands := make([]harvest.Candidate, 0, len(hrefs))
	for _, href := range hrefs {
		id := harvest.NoteIDFromURL(href)
		if id == "" {
			continue
		}
		cands = append(cands, harvest.Candidate{ID: id, Href: href})
		if limit > 0 && len(cands) >= limit {
			break
		}
	}
	return cands, nil
}

// OpenCandidate clicks the card and waits until the detail view's primary
// content region is present.
func (d *Driver) OpenCandidate(ctx context.Context, cand harvest.Candidate) error {
	sel := fmt.Sprintf(`section.note-item a[href*=%q]`, cand.ID)
	if err := d.surface.Click(ctx, sel); err != nil {
		return fmt.Errorf("open candidate %s: %w", cand.ID, err)
	}
	if err := d.surface.WaitVisible(ctx, selDetailMask, d.cfg.DetailWait); err != nil {
		// Leave the page in a known state before reporting the failure.
		if escErr := d.surface.PressEscape(ctx); escErr != nil {
			d.logger.Warn("escape after failed open", zap.Error(escErr))
		}
		return fmt.Errorf("detail view for %s did not load: %w", cand.ID, err)
	}
	return nil
}

// CloseDetail returns to the result listing, preferring the close button and
// falling back to the keyboard.
func (d *Driver) CloseDetail(ctx context.Context) error {
	if err := d.surface.Click(ctx, selDetailClose); err == nil {
		return nil
	}
	if err := d.surface.PressEscape(ctx); err != nil {
		return fmt.Errorf("close detail: %w", err)
	}
	return nil
}

// ScrollResults scrolls the result listing to reveal more candidates.
func (d *Driver) ScrollResults(ctx context.Context, pixels int) error {
	return d.surface.ScrollBy(ctx, pixels)
}

// Text reads rendered text inside the open detail view.
func (d *Driver) Text(ctx context.Context, sel string) (string, error) {
	return d.surface.Text(ctx, sel)
}

// HTML snapshots a region of the open detail view.
func (d *Driver) HTML(ctx context.Context, sel string) (string, error) {
	return d.surface.HTML(ctx, sel)
}

// IsVideo performs the fast structural check for the video marker before any
// network call is attempted.
func (d *Driver) IsVideo(ctx context.Context) (bool, error) {
	var isVideo bool
	if err := d.surface.Evaluate(ctx, isVideoJS, &isVideo); err != nil {
		return false, fmt.Errorf("video marker check: %w", err)
	}
	return isVideo, nil
}

// ScrollComments scrolls the comment region by one step.
func (d *Driver) ScrollComments(ctx context.Context) error {
	if err := d.surface.Evaluate(ctx, scrollCommentsJS, nil); err != nil {
		return fmt.Errorf("scroll comments: %w", err)
	}
	return nil
}

// ExpandReplies clicks every collapsed reply toggle currently rendered and
// returns how many were expanded.
func (d *Driver) ExpandReplies(ctx context.Context) (int, error) {
	var count int
	if err := d.surface.Evaluate(ctx, expandRepliesJS, &count); err != nil {
		return 0, fmt.Errorf("expand replies: %w", err)
	}
	return count, nil
}

func hostOf(baseURL string) string {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return trimmed
}
