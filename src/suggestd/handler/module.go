package handler

import (
	controller "github.com/codeassist/suggestd/src/suggestd/controller"
	suggestion "github.com/codeassist/suggestd/src/suggestd/controller/suggestion"
	handler "github.com/codeassist/suggestd/src/suggestd/handler/suggestd"
	"github.com/codeassist/suggestd/src/suggestd/repository/session"
	"go.uber.org/fx"
)

// Module provides the suggestd server into an Fx application.
var Module = fx.Options(
	controller.Module,
	fx.Provide(session.New),
	fx.Provide(handler.New),
	fx.Invoke(outputProcessInfo),
	fx.Invoke(func(m handler.Handler) {}),
	fx.Invoke(func(m suggestion.Controller) {}),
)
