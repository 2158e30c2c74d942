// Package worker issues suggestion fetches to the out-of-process worker.
package worker

import (
	"context"

	"github.com/codeassist/suggestd/src/suggestd/entity"
	"github.com/codeassist/suggestd/src/suggestd/internal/workerchannel"
	tally "github.com/uber-go/tally"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// MethodFetchSuggestions is the worker-side method performing one suggestion fetch.
const MethodFetchSuggestions = "suggestion/fetch"

// Gateway wraps remote calls to the suggestion worker.
type Gateway interface {
	// FetchSuggestions performs exactly one fetch for the request's document.
	// Respects the request's force flag; may fail or be cancelled via ctx.
	FetchSuggestions(ctx context.Context, req entity.FetchRequest, filespace *entity.Filespace) ([]entity.Suggestion, error)
}

// Params define values to be used by the gateway.
type Params struct {
	fx.In

	Channel workerchannel.Channel
	Logger  *zap.SugaredLogger
	Stats   tally.Scope
}

type fetchSuggestionsParams struct {
	URI          string `json:"uri"`
	RelativePath string `json:"relativePath"`
	Force        bool   `json:"force"`
}

type fetchSuggestionsResult struct {
	Suggestions []entity.Suggestion `json:"suggestions"`
}

type gateway struct {
	channel workerchannel.Channel
	logger  *zap.SugaredLogger
	stats   tally.Scope
}

// New returns a Gateway for fetching suggestions from the worker.
func New(p Params) Gateway {
	g := &gateway{
		channel: p.Channel,
		logger:  p.Logger,
		stats:   p.Stats.SubScope("worker"),
	}
	p.Channel.SetDelegate(g)
	return g
}

func (g *gateway) FetchSuggestions(ctx context.Context, req entity.FetchRequest, filespace *entity.Filespace) ([]entity.Suggestion, error) {
	params := fetchSuggestionsParams{
		URI:   string(req.Document),
		Force: req.Force,
	}
	if filespace != nil {
		params.RelativePath = filespace.RelativePath
	}

	var result fetchSuggestionsResult
	if err := g.channel.Call(ctx, MethodFetchSuggestions, &params, &result); err != nil {
		return nil, err
	}
	g.stats.Counter("fetches").Inc(1)
	return result.Suggestions, nil
}

// Invalidated implements workerchannel.Delegate. The channel rebuilds itself
// on next use, so this is observability only.
func (g *gateway) Invalidated(err error) {
	g.stats.Counter("channel_invalidated").Inc(1)
	g.logger.Warnf("worker channel invalidated: %v", err)
}

// Interrupted implements workerchannel.Delegate.
func (g *gateway) Interrupted(err error) {
	g.stats.Counter("channel_interrupted").Inc(1)
	g.logger.Warnf("worker channel interrupted: %v", err)
}
