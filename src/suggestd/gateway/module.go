package gateway

import (
	"github.com/codeassist/suggestd/src/suggestd/gateway/editor"
	"github.com/codeassist/suggestd/src/suggestd/gateway/worker"
	"go.uber.org/fx"
)

// Module provides the service's outbound gateways into an Fx application.
var Module = fx.Options(
	fx.Provide(editor.New),
	fx.Provide(worker.New),
)
