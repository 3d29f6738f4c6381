package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/pdigest/internal/auth"
	"github.com/ppiankov/pdigest/internal/config"
	"github.com/ppiankov/pdigest/internal/digest"
	"github.com/ppiankov/pdigest/internal/embed"
	"github.com/ppiankov/pdigest/internal/normalize"
	"github.com/ppiankov/pdigest/internal/source"
	"github.com/ppiankov/pdigest/internal/store"
)

// pipeline is the wired digest stack for one command invocation.
type pipeline struct {
	builder *digest.Builder
	cache   *store.Store // nil when storage.path is empty
}

func newPipeline(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*pipeline, error) {
	tokens, err := auth.NewProvider(cfg.Graph.BaseURL,
		auth.WithHTTPClient(&http.Client{Timeout: cfg.Graph.Timeout.Duration}),
		auth.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	feed, err := source.NewGraph(cfg.Graph.BaseURL,
		source.WithVersion(cfg.Graph.Version),
		source.WithPageLimit(cfg.Graph.PageLimit),
		source.WithRateLimit(cfg.Graph.RequestsPerSecond),
		source.WithHTTPClient(&http.Client{Timeout: cfg.Graph.Timeout.Duration}),
		source.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	p := &pipeline{}
	opts := []embed.OEmbedOption{
		embed.WithHTTPClient(&http.Client{Timeout: cfg.Embeds.Timeout.Duration}),
		embed.WithCacheTTL(cfg.Embeds.CacheTTL.Duration),
		embed.WithRateLimit(cfg.Embeds.RequestsPerSecond),
		embed.WithLogger(log),
	}
	if cfg.Storage.Path != "" {
		p.cache, err = store.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		if n, err := p.cache.PruneOld(ctx, cfg.Storage.RetainDays); err != nil {
			log.WithError(err).Warn("prune oembed cache")
		} else if n > 0 {
			log.WithField("removed", n).Debug("pruned oembed cache")
		}
		opts = append(opts, embed.WithStore(p.cache))
	}

	slides, err := embed.NewOEmbedClient(cfg.Embeds.SlideShareOEmbedURL, opts...)
	if err != nil {
		p.Close()
		return nil, err
	}

	var redactor *normalize.Redactor
	if cfg.Privacy.Redact.Enabled {
		redactor, err = normalize.NewRedactor(cfg.Privacy.Redact.Patterns)
		if err != nil {
			p.Close()
			return nil, err
		}
	}

	p.builder, err = digest.NewBuilder(tokens, feed, embed.NewExtractor(slides, log), digest.Options{
		GroupID:   cfg.Graph.GroupID,
		AppID:     cfg.Graph.AppID,
		AppSecret: cfg.Graph.AppSecret,
		Workers:   cfg.Embeds.Workers,
		Location:  cfg.Location(),
		Redactor:  redactor,
		Logger:    log,
	})
	if err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

func (p *pipeline) Close() {
	if p.cache != nil {
		_ = p.cache.Close()
	}
}

func newFormatter(format string, color bool) (digest.Formatter, error) {
	switch format {
	case "json":
		return digest.NewJSON(), nil
	case "markdown", "md":
		return digest.NewMarkdown(), nil
	case "html":
		return digest.NewHTML(false), nil
	case "terminal", "":
		return digest.NewTerminal(color), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want terminal, json, markdown, or html)", format)
	}
}
