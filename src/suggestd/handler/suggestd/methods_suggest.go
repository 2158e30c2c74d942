package suggestd

import (
	"context"

	"github.com/codeassist/suggestd/src/suggestd/mapper"
	"go.lsp.dev/jsonrpc2"
)

func (r *jsonRPCRouter) SelectionChanged(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToSelectionChangedParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	err = r.suggestion.SelectionChanged(ctx, params)
	return reply(ctx, nil, err)
}

func (r *jsonRPCRouter) FocusChanged(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToFocusChangedParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	err = r.suggestion.FocusChanged(ctx, params)
	return reply(ctx, nil, err)
}

func (r *jsonRPCRouter) TriggerPrefetch(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	params, err := mapper.RequestToTriggerPrefetchParams(req)
	if err != nil {
		return reply(ctx, nil, err)
	}

	err = r.suggestion.TriggerPrefetchDebounced(ctx, params.Force)
	return reply(ctx, nil, err)
}

func (r *jsonRPCRouter) Cancel(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	err := r.suggestion.CancelInFlightTasks(ctx)
	return reply(ctx, nil, err)
}
