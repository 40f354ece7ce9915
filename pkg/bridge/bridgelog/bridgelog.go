// Package bridgelog provides the shared structured logger for the bridge
// core packages, following the package-level named-logger convention used
// throughout this codebase.
package bridgelog

import (
	golog "github.com/ipfs/go-log/v2"
	"go.uber.org/zap"
)

// logger is the package-level ipfs/go-log logger, named after the subsystem.
var logger = golog.Logger("tbtc-bridge-core")

// Sugared returns a zap.SugaredLogger scoped to the given component name,
// for use by engines that want structured key/value fields
// (zap.String(...), zap.Stringer(...)).
func Sugared(component string) *zap.SugaredLogger {
	return logger.Desugar().Sugar().With(zap.String("component", component))
}

// Named returns the shared go-log StandardLogger, for callers that only
// need Info/Warn/Error without structured fields.
func Named() golog.StandardLogger {
	return logger
}
