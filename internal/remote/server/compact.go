package server

import (
	"context"
	"fmt"
	"log/slog"
)

// CompactResult contains the outcome of a compaction run.
type CompactResult struct {
	Sites  int `json:"sites"`
	Pruned int `json:"pruned"`
	Failed int `json:"failed"`
}

// Compact applies checkpoint retention to every site. A failure on one site
// is logged and does not stop the run.
func Compact(ctx context.Context, engine Engine, logger *slog.Logger) (*CompactResult, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sites, err := engine.Sites(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}

	result := &CompactResult{}
	for _, site := range sites {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		n, err := engine.Prune(ctx, site)
		if err != nil {
			logger.Warn("compact: failed to prune site", "site", site, "error", err)
			result.Failed++
			continue
		}
		result.Sites++
		result.Pruned += n
	}

	logger.Info("compact complete",
		"sites", result.Sites,
		"pruned", result.Pruned,
		"failed", result.Failed,
	)

	return result, nil
}
