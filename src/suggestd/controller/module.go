// Package controller aggregates the service's controllers.
package controller

import (
	"github.com/codeassist/suggestd/src/suggestd/controller/suggestion"
	"go.uber.org/fx"
)

// Module provides all controllers into an Fx application.
var Module = fx.Options(
	suggestion.Module,
)
