package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	gcppubsub "cloud.google.com/go/pubsub"
	gcpstorage "cloud.google.com/go/storage"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	operatorapi "github.com/sugetang/redharvest/internal/api"
	"github.com/sugetang/redharvest/internal/apiclient"
	"github.com/sugetang/redharvest/internal/browser"
	"github.com/sugetang/redharvest/internal/config"
	"github.com/sugetang/redharvest/internal/harvest"
	"github.com/sugetang/redharvest/internal/logging"
	"github.com/sugetang/redharvest/internal/media"
	"github.com/sugetang/redharvest/internal/publisher"
	pubsubpublisher "github.com/sugetang/redharvest/internal/publisher/pubsub"
	"github.com/sugetang/redharvest/internal/storage"
	gcsblobs "github.com/sugetang/redharvest/internal/storage/gcs"
	localblobs "github.com/sugetang/redharvest/internal/storage/local"
	memoryblobs "github.com/sugetang/redharvest/internal/storage/memory"
	"github.com/sugetang/redharvest/internal/store"
	"github.com/sugetang/redharvest/internal/visited"
)

// newHarvestCmd creates the 'harvest' subcommand, which runs one crawl
// session against one search term.
func newHarvestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "harvest [search term]",
		Short: "Run one harvesting session",
		Long: `Attaches to the configured browser, issues the search, and harvests
result units until the quota is reached or the listing is exhausted. The
search term may be given as an argument or via harvest.search_term.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHarvest,
	}
}

func runHarvest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		cfg.Harvest.SearchTerm = args[0]
	}
	if cfg.Harvest.SearchTerm == "" {
		return errors.New("a search term is required (argument or harvest.search_term)")
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	surface, err := browser.New(ctx, browser.Config{
		DevtoolsURL: cfg.Browser.DevtoolsURL,
		UserDataDir: cfg.Browser.UserDataDir,
		UserAgent:   cfg.Browser.UserAgent,
		Headless:    cfg.Browser.Headless,
		NavTimeout:  cfg.NavTimeout(),
	}, logger)
	if err != nil {
		return fmt.Errorf("attach browser: %w", err)
	}
	defer surface.Close()

	driver := browser.NewDriver(surface, browser.DriverConfig{
		BaseURL:      cfg.Harvest.BaseURL,
		ResultsRoute: cfg.Harvest.ResultsRoute,
	}, logger)

	signer := apiclient.NewPageSigner(surface, surface)
	api := apiclient.New(apiclient.Config{
		Host:          cfg.API.Host,
		Timeout:       cfg.APITimeout(),
		RetryAttempts: cfg.API.RetryAttempts,
		RetryWait:     time.Duration(cfg.API.RetryWaitMs) * time.Millisecond,
		UserAgent:     cfg.Browser.UserAgent,
	}, signer, surface, logger)

	var mediaFetcher harvest.MediaFetcher
	if cfg.Harvest.DownloadVideos {
		blobs, cleanup, err := buildBlobs(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		mediaFetcher = media.New(media.Config{UserAgent: cfg.Browser.UserAgent}, blobs, logger)
	}

	var pacer harvest.Pacer = harvest.NopPacer{}
	if cfg.Harvest.Pacing == "human" {
		pacer = harvest.NewHumanPacer()
	}

	extractor := harvest.NewExtractor(harvest.ExtractorConfig{
		ScrollRounds: cfg.Harvest.CommentScrollRounds,
		CommentLimit: cfg.Harvest.CommentLimit,
	}, driver, api, mediaFetcher, pacer, logger)

	visitedSet, closeVisited, err := buildVisited(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeVisited()

	notifier, closeNotifier, err := buildNotifier(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeNotifier()

	// The store is opened last so no construction failure can leave the
	// artifact file dangling; the session owns closing it.
	artifact := artifactPath(cfg.Store.Dir, cfg.Harvest.SearchTerm)
	st, err := store.Open(store.Config{
		Path:           artifact,
		FlushThreshold: cfg.Store.FlushThreshold,
		FlushInterval:  cfg.FlushInterval(),
	}, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	sess, err := harvest.NewSession(harvest.SessionConfig{
		SearchTerm:      cfg.Harvest.SearchTerm,
		Quota:           cfg.Harvest.Quota,
		StallThreshold:  cfg.Harvest.StallThreshold,
		CandidateWindow: cfg.Harvest.CandidateWindow,
		BaseURL:         cfg.Harvest.BaseURL,
		ResultsRoute:    cfg.Harvest.ResultsRoute,
		ArtifactPath:    artifact,
	}, harvest.SessionDeps{
		Browser:   driver,
		Extractor: extractor,
		Visited:   visitedSet,
		Store:     st,
		Pacer:     pacer,
		Notifier:  notifier,
		Logger:    logger,
	})
	if err != nil {
		if cerr := st.Close(); cerr != nil {
			logger.Error("store close failed", zap.Error(cerr))
		}
		return err
	}

	if cfg.Server.Enabled {
		shutdown := startOperatorServer(cfg.Server.Port, sess, logger)
		defer shutdown()
	}

	res, runErr := sess.Run(ctx)
	logger.Info("harvest finished",
		zap.String("stop_reason", string(res.StopReason)),
		zap.Int("processed", res.Processed),
		zap.String("artifact", res.ArtifactPath),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run session: %w", runErr)
	}
	return nil
}

func buildBlobs(ctx context.Context, cfg config.Config) (storage.Provider, func(), error) {
	switch cfg.Blobs.Backend {
	case "local":
		p, err := localblobs.New(cfg.Blobs.BaseDir)
		if err != nil {
			return nil, nil, fmt.Errorf("init local blobs: %w", err)
		}
		return p, func() {}, nil
	case "gcs":
		client, err := gcpstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("init gcs client: %w", err)
		}
		p, err := gcsblobs.New(client, cfg.Blobs.GCSBucket)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return p, func() { _ = client.Close() }, nil
	case "memory":
		return memoryblobs.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown blobs backend %q", cfg.Blobs.Backend)
	}
}

func buildVisited(ctx context.Context, cfg config.Config) (harvest.VisitedSet, func(), error) {
	switch cfg.Visited.Backend {
	case "memory":
		return visited.NewMemory(), func() {}, nil
	case "postgres":
		pg, err := visited.NewPostgres(ctx, visited.PostgresConfig{
			DSN:   cfg.Visited.DSN,
			Table: cfg.Visited.Table,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("init visited store: %w", err)
		}
		return pg, pg.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown visited backend %q", cfg.Visited.Backend)
	}
}

func buildNotifier(ctx context.Context, cfg config.Config) (harvest.CompletionNotifier, func(), error) {
	if !cfg.Publisher.Enabled {
		return nil, func() {}, nil
	}
	client, err := gcppubsub.NewClient(ctx, cfg.Publisher.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("init pubsub client: %w", err)
	}
	pub, err := pubsubpublisher.New(client, cfg.Publisher.Topic)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	cleanup := func() {
		pub.Stop()
		_ = client.Close()
	}
	return publisher.NewNotifier(pub), cleanup, nil
}

func startOperatorServer(port int, sess *harvest.Session, logger *zap.Logger) func() {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           operatorapi.NewServer(sess, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("operator server failed", zap.Error(err))
		}
	}()
	return func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}
}

// artifactPath builds a per-run artifact name from the search term.
func artifactPath(dir, term string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, term)
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "harvest"
	}
	name := fmt.Sprintf("%s-%s.jsonl", slug, time.Now().Format("20060102-150405"))
	return filepath.Join(dir, name)
}
