package app

import (
	"context"
	"time"

	"github.com/codeassist/suggestd/src/suggestd/gateway"
	"github.com/codeassist/suggestd/src/suggestd/handler"
	"github.com/codeassist/suggestd/src/suggestd/internal/clock"
	"github.com/codeassist/suggestd/src/suggestd/internal/core"
	"github.com/codeassist/suggestd/src/suggestd/internal/eventstream"
	"github.com/codeassist/suggestd/src/suggestd/internal/executor"
	"github.com/codeassist/suggestd/src/suggestd/internal/fs"
	"github.com/codeassist/suggestd/src/suggestd/internal/jsonrpcfx"
	"github.com/codeassist/suggestd/src/suggestd/internal/ratelimit"
	"github.com/codeassist/suggestd/src/suggestd/internal/serverinfofile"
	"github.com/codeassist/suggestd/src/suggestd/internal/workerchannel"
	"github.com/codeassist/suggestd/src/suggestd/repository/workspace"
	tally "github.com/uber-go/tally"
	"go.uber.org/fx"
)

// Module defines the suggestd application module.
var Module = fx.Options(
	gateway.Module, // outbounds
	handler.Module, // inbounds
	jsonrpcfx.Module,
	fs.Module,
	executor.Module,
	serverinfofile.Module,
	clock.Module,
	eventstream.Module,
	ratelimit.Module,
	workerchannel.Module,
	workspace.Module,
	core.ConfigModule,
	core.LoggerModule,
	fx.Provide(func(lc fx.Lifecycle) tally.Scope {
		rs, closer := tally.NewRootScope(tally.ScopeOptions{
			Tags: map[string]string{
				"service": "suggestd",
			},
		}, 1*time.Second)

		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return closer.Close()
			},
		})

		return rs
	}),
	fx.Decorate(decorateEnvContext),
	fx.Decorate(decorateConfigProvider),
	fx.Provide(func() Context {
		return Context{
			Environment:        "local",
			RuntimeEnvironment: "local",
		}
	}),
)
