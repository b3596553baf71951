package main

import (
	"context"
	"log/slog"

	"caretaker/internal/collector"
	"caretaker/internal/config"
	"caretaker/internal/crossref"
	"caretaker/internal/curator"
	"caretaker/internal/daemon"
	"caretaker/internal/duplicates"
	"caretaker/internal/ffprobe"
	"caretaker/internal/library"
	"caretaker/internal/quality"
	"caretaker/internal/scan"
	"caretaker/internal/services"
	"caretaker/internal/services/ai"
	"caretaker/internal/services/bazarr"
	"caretaker/internal/services/overseerr"
	"caretaker/internal/services/plex"
	"caretaker/internal/services/radarr"
	"caretaker/internal/services/sonarr"
	"caretaker/internal/services/tautulli"
)

// dependencies carries the wired pipeline components and the integration
// surfaces the daemon exposes over the control API.
type dependencies struct {
	collector *collector.Collector
	curator   *curator.Curator
	matcher   *crossref.Matcher
	engine    *duplicates.Engine
	analyzer  *quality.Analyzer
	inventory *plex.Client
	probes    []daemon.ServiceProbe
	requests  daemon.RequestSubmitter
}

func buildDependencies(cfg *config.Config, store *library.Store, logger *slog.Logger) *dependencies {
	inventory := plex.NewClient(cfg)

	var watch collector.WatchHistory
	probes := []daemon.ServiceProbe{{
		Name:       "plex",
		Configured: cfg.Plex.URL != "" && cfg.Plex.Token != "",
		Probe:      inventory.TestConnection,
	}}

	var entries []crossref.Entry
	var requests daemon.RequestSubmitter

	if cfg.Radarr.Enabled {
		client := radarr.NewClient(cfg)
		entries = append(entries, crossref.Entry{
			Integration:  client,
			Capabilities: []crossref.Capability{crossref.CapabilityMovies},
		})
		probes = append(probes, probeFor(client, true))
	} else {
		probes = append(probes, daemon.ServiceProbe{Name: "radarr"})
	}

	if cfg.Sonarr.Enabled {
		client := sonarr.NewClient(cfg)
		entries = append(entries, crossref.Entry{
			Integration:  client,
			Capabilities: []crossref.Capability{crossref.CapabilityShows},
		})
		probes = append(probes, probeFor(client, true))
	} else {
		probes = append(probes, daemon.ServiceProbe{Name: "sonarr"})
	}

	if cfg.Overseerr.Enabled {
		client := overseerr.NewClient(cfg)
		entries = append(entries, crossref.Entry{
			Integration:  client,
			Capabilities: []crossref.Capability{crossref.CapabilityRequests},
		})
		probes = append(probes, probeFor(client, true))
		requests = client
	} else {
		probes = append(probes, daemon.ServiceProbe{Name: "overseerr"})
	}

	if cfg.Bazarr.Enabled {
		client := bazarr.NewClient(cfg)
		entries = append(entries, crossref.Entry{
			Integration:  client,
			Capabilities: []crossref.Capability{crossref.CapabilitySubtitles},
		})
		probes = append(probes, probeFor(client, true))
	} else {
		probes = append(probes, daemon.ServiceProbe{Name: "bazarr"})
	}

	if cfg.Tautulli.Enabled {
		client := tautulli.NewClient(cfg)
		watch = client
		probes = append(probes, probeFor(client, true))
	} else {
		probes = append(probes, daemon.ServiceProbe{Name: "tautulli"})
	}

	gateway := ai.NewGateway(cfg, store, logger)
	prober := ffprobe.New(cfg.FFprobeBinary())

	return &dependencies{
		collector: collector.New(store, inventory, watch, logger),
		curator: curator.New(store, gateway, cfg.AI.AdjustmentCap,
			cfg.Scan.MaxRecommendationsPerKind, logger),
		matcher: crossref.NewMatcher(store, entries, crossref.Options{
			RequiredSubtitles: cfg.Scan.RequiredSubtitleLanguages,
			RetryAttempts:     cfg.Scan.ItemRetryAttempts,
			Workers:           cfg.Workflow.ServiceWorkers,
		}, logger),
		engine:    duplicates.NewEngine(store, cfg, logger),
		analyzer:  quality.NewAnalyzer(store, cfg, prober, logger),
		inventory: inventory,
		probes:    probes,
		requests:  requests,
	}
}

func probeFor(integration services.Integration, configured bool) daemon.ServiceProbe {
	return daemon.ServiceProbe{
		Name:       integration.Name(),
		Configured: configured,
		Probe:      integration.TestConnection,
	}
}

func buildPhases(deps *dependencies) []scan.Phase {
	phase := func(num int, name, description string, run func(ctx context.Context, tracker *scan.Tracker) error) scan.Phase {
		return scan.Phase{
			Num:         num,
			Name:        name,
			Description: description,
			Handler:     scan.HandlerFunc{PhaseName: name, Run: run},
		}
	}

	bothKinds := func(run func(ctx context.Context, kind library.MediaKind, tracker *scan.Tracker) error) func(ctx context.Context, tracker *scan.Tracker) error {
		return func(ctx context.Context, tracker *scan.Tracker) error {
			if err := run(ctx, library.KindMovie, tracker); err != nil {
				return err
			}
			return run(ctx, library.KindShow, tracker)
		}
	}

	return []scan.Phase{
		phase(1, "Library Sync", "media server inventory and watch history",
			func(ctx context.Context, tracker *scan.Tracker) error {
				_, err := deps.collector.Sync(ctx, tracker)
				return err
			}),
		phase(2, "AI Curation", "bad-item scoring and acquisition recommendations",
			func(ctx context.Context, tracker *scan.Tracker) error {
				if err := deps.curator.Score(ctx, tracker.ScanID(), tracker); err != nil {
					return err
				}
				return deps.curator.Recommend(ctx, tracker.ScanID(), tracker)
			}),
		phase(3, "Service Sync", "movie and show manager cross-reference",
			func(ctx context.Context, tracker *scan.Tracker) error {
				return deps.matcher.SyncManagers(ctx, tracker.ScanID(), tracker)
			}),
		phase(4, "Request Sync", "request manager protection flags",
			func(ctx context.Context, tracker *scan.Tracker) error {
				return deps.matcher.SyncRequests(ctx, tracker.ScanID(), tracker)
			}),
		phase(5, "Collection Analysis", "incomplete and single-item collections",
			func(ctx context.Context, tracker *scan.Tracker) error {
				return deps.analyzer.CheckCollections(ctx, tracker.ScanID(), tracker)
			}),
		phase(6, "Movie Organization", "movie folder naming checks",
			func(ctx context.Context, tracker *scan.Tracker) error {
				return deps.analyzer.CheckOrganization(ctx, tracker.ScanID(), library.KindMovie, tracker)
			}),
		phase(7, "TV Organization", "show folder naming checks",
			func(ctx context.Context, tracker *scan.Tracker) error {
				return deps.analyzer.CheckOrganization(ctx, tracker.ScanID(), library.KindShow, tracker)
			}),
		phase(8, "Movie Deep Scan", "movie duplicate clustering and ranking",
			func(ctx context.Context, tracker *scan.Tracker) error {
				_, err := deps.engine.Analyze(ctx, tracker.ScanID(), library.KindMovie, tracker)
				return err
			}),
		phase(9, "TV Deep Scan", "episode duplicate clustering and ranking",
			func(ctx context.Context, tracker *scan.Tracker) error {
				_, err := deps.engine.Analyze(ctx, tracker.ScanID(), library.KindShow, tracker)
				return err
			}),
		phase(10, "Subtitle Coverage", "subtitle manager cross-reference",
			func(ctx context.Context, tracker *scan.Tracker) error {
				return deps.matcher.SyncSubtitles(ctx, tracker.ScanID(), tracker)
			}),
		phase(11, "Movie Integrity", "structural probe of movie files",
			func(ctx context.Context, tracker *scan.Tracker) error {
				return deps.analyzer.CheckIntegrity(ctx, tracker.ScanID(), library.KindMovie, tracker)
			}),
		phase(12, "TV Integrity", "structural probe of episode files",
			func(ctx context.Context, tracker *scan.Tracker) error {
				return deps.analyzer.CheckIntegrity(ctx, tracker.ScanID(), library.KindShow, tracker)
			}),
		phase(13, "Language Validation", "audio language tags against preferences",
			bothKinds(func(ctx context.Context, kind library.MediaKind, tracker *scan.Tracker) error {
				return deps.analyzer.CheckLanguages(ctx, tracker.ScanID(), kind, tracker)
			})),
		phase(14, "Movie HDR/Subtitle", "HDR metadata and embedded subtitles for movies",
			func(ctx context.Context, tracker *scan.Tracker) error {
				return deps.analyzer.CheckHDR(ctx, tracker.ScanID(), library.KindMovie, tracker)
			}),
		phase(15, "TV HDR/Subtitle", "HDR metadata and embedded subtitles for episodes",
			func(ctx context.Context, tracker *scan.Tracker) error {
				return deps.analyzer.CheckHDR(ctx, tracker.ScanID(), library.KindShow, tracker)
			}),
		phase(16, "Storage Analysis", "size bounds per resolution tier",
			bothKinds(func(ctx context.Context, kind library.MediaKind, tracker *scan.Tracker) error {
				return deps.analyzer.CheckStorage(ctx, tracker.ScanID(), kind, tracker)
			})),
		phase(17, "Codec Analysis", "legacy codec detection",
			bothKinds(func(ctx context.Context, kind library.MediaKind, tracker *scan.Tracker) error {
				return deps.analyzer.CheckCodecs(ctx, tracker.ScanID(), kind, tracker)
			})),
	}
}
