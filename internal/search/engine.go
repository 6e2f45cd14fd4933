// Package search finds the best-matching external video for a title/artist
// pair by scoring ranked backend results with a lexical heuristic.
package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"soundfetch/internal/core"
	"soundfetch/pkg/querynorm"
)

// Backend produces ranked candidates for a query. minDuration/maxDuration are
// strict backend-side bounds in seconds.
type Backend interface {
	Search(ctx context.Context, query string, maxResults, minDuration, maxDuration int) ([]core.SearchCandidate, error)
}

// Engine scores and filters backend candidates. The additive lexical score
// favors canonical "official audio" uploads over remixes, covers and live
// versions without semantic matching.
type Engine struct {
	backend Backend
	config  *core.SearchConfig
	logger  *zap.Logger
}

func NewEngine(backend Backend, config *core.SearchConfig, logger *zap.Logger) *Engine {
	return &Engine{
		backend: backend,
		config:  config,
		logger:  logger,
	}
}

// FindBestMatch returns the highest-scoring acceptable candidate for the
// given title/artist, or core.ErrNoMatch when nothing clears the threshold.
// Ties keep the backend's original ranking.
func (e *Engine) FindBestMatch(ctx context.Context, title, artist string) (*core.SearchCandidate, error) {
	normalized := querynorm.Normalize(title + " " + artist)
	enhanced := EnhanceQuery(normalized)

	e.logger.Debug("Searching for candidates",
		zap.String("query", normalized),
		zap.String("enhanced", enhanced))

	candidates, err := e.backend.Search(ctx, enhanced,
		e.config.MaxResults, e.config.BackendMinDuration, e.config.BackendMaxDuration)
	if err != nil {
		return nil, err
	}

	terms := querynorm.Terms(normalized)

	accepted := make([]core.SearchCandidate, 0, len(candidates))
	for _, c := range candidates {
		c.MatchScore = e.score(c.DisplayTitle, terms)
		if c.Duration < e.config.MinDuration || c.Duration > e.config.MaxDuration {
			continue
		}
		if c.MatchScore <= e.config.MinScore {
			continue
		}
		accepted = append(accepted, c)
	}

	if len(accepted) == 0 {
		e.logger.Info("No acceptable candidate",
			zap.String("title", title),
			zap.String("artist", artist),
			zap.Int("considered", len(candidates)))
		return nil, core.ErrNoMatch
	}

	// Stable: equal scores keep the backend's result order.
	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].MatchScore > accepted[j].MatchScore
	})

	best := accepted[0]
	e.logger.Info("Selected candidate",
		zap.String("locator", best.Locator),
		zap.String("candidate_title", best.DisplayTitle),
		zap.Float64("score", best.MatchScore))
	return &best, nil
}

// EnhanceQuery appends quoted boosting terms that bias the backend toward
// canonical uploads.
func EnhanceQuery(normalized string) string {
	return fmt.Sprintf(`"%s" "official" "audio" "lyrics"`, normalized)
}

func (e *Engine) score(displayTitle string, terms []string) float64 {
	title := strings.ToLower(displayTitle)

	var score float64
	for _, term := range terms {
		if strings.Contains(title, term) {
			score++
		}
	}
	if strings.Contains(title, "official") {
		score += e.config.OfficialBonus
	}
	if strings.Contains(title, "audio") {
		score += e.config.AudioBonus
	}
	if strings.Contains(title, "lyrics") {
		score += e.config.LyricsBonus
	}
	return score
}
