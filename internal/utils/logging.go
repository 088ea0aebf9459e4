package utils

import (
	"strings"

	"go.uber.org/zap"
)

// NewLogger builds the process logger. LOG_LEVEL=debug switches to the
// development encoder.
func NewLogger(level string) (*zap.Logger, error) {
	if strings.EqualFold(strings.TrimSpace(level), "debug") {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
