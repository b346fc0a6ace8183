//go:build linux

package system

import (
	"github.com/genricoloni/inkframe/internal/domain"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// New creates the host controller. A missing system bus is not fatal; the
// controller then uses the command line tools.
func New(logger *zap.Logger) (domain.SystemControl, func() error) {
	client, err := NewStdLogindClient()
	if err != nil {
		logger.Warn("System D-Bus unavailable, using shutdown(8)", zap.Error(err))
		return NewController(logger, nil, ExecRunner, clockwork.NewRealClock()), func() error { return nil }
	}
	return NewController(logger, client, ExecRunner, clockwork.NewRealClock()), client.Close
}
