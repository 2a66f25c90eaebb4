// Package logging provides the zap logger construction and log sanitization
// helpers shared by all dataguard components.
package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// New builds the process-wide zap logger. Production config (JSON, info+) for
// any env except "local", development config otherwise.
func New(env string) (*zap.Logger, error) {
	var (
		logger *zap.Logger
		err    error
	)
	if env == "local" {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
