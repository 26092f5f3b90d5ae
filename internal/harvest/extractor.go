package harvest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sugetang/redharvest/internal/apiclient"
)

// Detail view selectors.
const (
	selDetailRegion = ".note-detail-mask"
	selTitle        = "#detail-title"
	selBody         = "#detail-desc .note-text"
)

// dateSelectors are tried in order; unit layouts move the date element
// around, so the first non-empty match wins.
var dateSelectors = []string{
	".bottom-container .date",
	".note-content .date",
	"[class*=bottom] .date",
}

// PublishDateSentinel is recorded when no date selector matched.
const PublishDateSentinel = "[publish date unavailable]"

// imageSelectors cover the structural wrappers the platform renders images
// inside, varying across unit types.
var imageSelectors = []string{
	".swiper-slide img",
	".img-container img",
	".media-container img",
	"[class*=carousel] img",
	"[class*=slider] img",
}

// DetailFetcher resolves structured unit detail through the signed API.
// *apiclient.Client satisfies it.
type DetailFetcher interface {
	FetchNoteDetail(ctx context.Context, noteID string, hint apiclient.DetailHint) (apiclient.NoteCard, error)
}

// MediaFetcher downloads a resolved media asset into blob storage and
// returns its storage URI. Optional.
type MediaFetcher interface {
	Download(ctx context.Context, name, srcURL string) (string, error)
}

// ExtractStats reports what one extraction pass could not recover.
type ExtractStats struct {
	// Failed lists the fields left at their failure default.
	Failed []string
	// Fatal is set when the pass hit a session-fatal condition, such as an
	// access block from the signed API. The unit itself is still usable.
	Fatal error
}

// ExtractorConfig bounds the extractor's page interaction.
type ExtractorConfig struct {
	// ScrollRounds bounds comment-region scroll and reply-expand actions.
	ScrollRounds int
	// CommentLimit caps recorded top-level comments.
	CommentLimit int
}

// Extractor reads one open detail view into a ContentUnit. Every field is
// extracted under its own recovery wrapper; one field's failure never
// touches another and never escapes Extract.
type Extractor struct {
	cfg    ExtractorConfig
	page   DetailReader
	api    DetailFetcher
	media  MediaFetcher
	pacer  Pacer
	logger *zap.Logger
	now    func() time.Time
}

// NewExtractor builds an Extractor. media may be nil to skip asset downloads.
func NewExtractor(cfg ExtractorConfig, page DetailReader, api DetailFetcher, media MediaFetcher, pacer Pacer, logger *zap.Logger) *Extractor {
	if cfg.ScrollRounds <= 0 {
		cfg.ScrollRounds = 3
	}
	if cfg.CommentLimit <= 0 {
		cfg.CommentLimit = 100
	}
	if pacer == nil {
		pacer = NopPacer{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		cfg:    cfg,
		page:   page,
		api:    api,
		media:  media,
		pacer:  pacer,
		logger: logger,
		now:    time.Now,
	}
}

// Extract populates a ContentUnit from the currently open detail view. It
// never returns an error; failed fields keep their defaults and are listed
// in the returned stats.
func (e *Extractor) Extract(ctx context.Context, cand Candidate) (ContentUnit, ExtractStats) {
	unit := ContentUnit{
		ID:          cand.ID,
		SourceURL:   cand.Href,
		MediaType:   MediaImage,
		ImageRefs:   []string{},
		Comments:    []Comment{},
		HarvestedAt: e.now(),
	}
	var stats ExtractStats

	if loc, err := e.page.Location(ctx); err == nil && loc != "" {
		unit.SourceURL = loc
	}

	e.field("title", &stats, func() error {
		text, err := e.page.Text(ctx, selTitle)
		unit.Title = strings.TrimSpace(text)
		return err
	})

	e.field("body", &stats, func() error {
		text, err := e.page.Text(ctx, selBody)
		unit.Body = strings.TrimSpace(text)
		return err
	})

	// The structural check runs before any network call so image-only units
	// never cost an API round trip.
	isVideo := false
	e.field("media_type", &stats, func() error {
		v, err := e.page.IsVideo(ctx)
		isVideo = v
		return err
	})

	if isVideo {
		unit.MediaType = MediaVideo
		e.field("video_ref", &stats, func() error {
			return e.resolveVideo(ctx, cand, &unit, &stats)
		})
	} else {
		e.field("image_refs", &stats, func() error {
			snapshot, err := e.page.HTML(ctx, selDetailRegion)
			if err != nil {
				return err
			}
			refs, err := parseImages(snapshot)
			if refs != nil {
				unit.ImageRefs = refs
			}
			return err
		})
	}

	e.field("comments", &stats, func() error {
		comments, err := e.readComments(ctx)
		if comments != nil {
			unit.Comments = comments
		}
		return err
	})

	e.field("publish_date", &stats, func() error {
		for _, sel := range dateSelectors {
			text, err := e.page.Text(ctx, sel)
			if err != nil {
				continue
			}
			if text = strings.TrimSpace(text); text != "" {
				unit.PublishDate = text
				return nil
			}
		}
		unit.PublishDate = PublishDateSentinel
		return errors.New("no date selector matched")
	})

	return unit, stats
}

// field runs one extraction step under a recovery wrapper and tallies its
// failure. Panics are absorbed here; they count like any other field error.
func (e *Extractor) field(name string, stats *ExtractStats, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err == nil {
		return
	}
	stats.Failed = append(stats.Failed, name)
	fieldFailuresTotal.WithLabelValues(name).Inc()
	e.logger.Warn("field extraction failed",
		zap.String("field", name),
		zap.Error(err),
	)
}

// resolveVideo resolves a durable video location through the signed API and
// optionally downloads the asset. Download failures only cost the blob URI.
func (e *Extractor) resolveVideo(ctx context.Context, cand Candidate, unit *ContentUnit, stats *ExtractStats) error {
	apiFallbackTotal.Inc()

	card, err := e.api.FetchNoteDetail(ctx, cand.ID, apiclient.HintFromURL(cand.Href))
	if err != nil {
		if errors.Is(err, apiclient.ErrAccessBlocked) || errors.Is(err, apiclient.ErrAuthExpired) {
			stats.Fatal = err
		}
		return err
	}

	ref := apiclient.ResolveVideoURL(card)
	if ref == "" {
		return errors.New("no playable stream in detail payload")
	}
	unit.VideoRef = ref

	if e.media != nil {
		uri, err := e.media.Download(ctx, cand.ID+".mp4", ref)
		if err != nil {
			e.logger.Warn("video download failed",
				zap.String("unit", cand.ID),
				zap.Error(err),
			)
			return nil
		}
		unit.VideoBlobURI = uri
	}
	return nil
}

// readComments reveals the comment region with bounded scroll and expand
// actions, then parses a single snapshot. It reads only what rendered;
// completeness is not guaranteed.
func (e *Extractor) readComments(ctx context.Context) ([]Comment, error) {
	for i := 0; i < e.cfg.ScrollRounds; i++ {
		if err := e.page.ScrollComments(ctx); err != nil {
			break
		}
		e.pacer.Pause(ctx, ActionScroll)
	}
	for i := 0; i < e.cfg.ScrollRounds; i++ {
		expanded, err := e.page.ExpandReplies(ctx)
		if err != nil || expanded == 0 {
			break
		}
		e.pacer.Pause(ctx, ActionRead)
	}

	snapshot, err := e.page.HTML(ctx, selDetailRegion)
	if err != nil {
		return nil, err
	}
	comments, err := parseComments(snapshot)
	if err != nil {
		return nil, err
	}
	if len(comments) > e.cfg.CommentLimit {
		comments = comments[:e.cfg.CommentLimit]
	}
	return comments, nil
}

// parseImages collects content image locations from a detail snapshot in
// visual order, dropping decorative elements and duplicates.
func parseImages(snapshot string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot))
	if err != nil {
		return nil, fmt.Errorf("parse detail snapshot: %w", err)
	}

	refs := []string{}
	seen := make(map[string]struct{})
	for _, sel := range imageSelectors {
		doc.Find(sel).Each(func(_ int, img *goquery.Selection) {
			src, ok := img.Attr("src")
			if !ok || src == "" {
				src, _ = img.Attr("data-src")
			}
			if !isContentImage(src) {
				return
			}
			if _, dup := seen[src]; dup {
				return
			}
			seen[src] = struct{}{}
			refs = append(refs, src)
		})
	}
	return refs, nil
}

// isContentImage keeps platform CDN assets and drops avatars, reaction
// icons and inline emoji.
func isContentImage(src string) bool {
	if src == "" {
		return false
	}
	lower := strings.ToLower(src)
	if !strings.Contains(lower, "xhscdn.com") && !strings.Contains(lower, "xiaohongshu.com") {
		return false
	}
	for _, marker := range []string{"avatar", "emoji", "icon"} {
		if strings.Contains(lower, marker) {
			return false
		}
	}
	return true
}

// parseComments reads the rendered comment tree from a detail snapshot.
// Replies nest exactly one level under their top-level comment.
func parseComments(snapshot string) ([]Comment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snapshot))
	if err != nil {
		return nil, fmt.Errorf("parse comment snapshot: %w", err)
	}

	comments := []Comment{}
	doc.Find(".parent-comment").Each(func(_ int, block *goquery.Selection) {
		top := block.Find(".comment-item").Not(".comment-item-sub").First()
		if top.Length() == 0 {
			return
		}
		comment := commentFromNode(top)
		block.Find(".reply-container .comment-item-sub").Each(func(_ int, sub *goquery.Selection) {
			comment.Children = append(comment.Children, commentFromNode(sub))
		})
		comments = append(comments, comment)
	})

	// Some layouts render flat comment items without the parent wrapper.
	if len(comments) == 0 {
		doc.Find(".comment-item").Not(".comment-item-sub").Each(func(_ int, node *goquery.Selection) {
			comments = append(comments, commentFromNode(node))
		})
	}
	return comments, nil
}

func commentFromNode(node *goquery.Selection) Comment {
	return Comment{
		Author:    strings.TrimSpace(node.Find(".author-wrapper .name").First().Text()),
		Text:      strings.TrimSpace(node.Find(".content .note-text").First().Text()),
		LikeCount: parseLikeCount(node.Find(".like-wrapper .count").First().Text()),
		Children:  []Comment{},
	}
}

// parseLikeCount reads the rendered like counter. The platform renders a
// placeholder glyph for zero and compacts large counts with a 万 suffix.
func parseLikeCount(raw string) int {
	s := strings.TrimSpace(raw)
	if s == "" || s == "赞" {
		return 0
	}
	mult := 1.0
	if strings.HasSuffix(s, "万") {
		mult = 10000
		s = strings.TrimSuffix(s, "万")
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return int(v * mult)
}
