// Package logmod is the built-in logger module: it exposes the logger.log
// service so plugins emit structured log lines that land both in the
// process log and in the current operation's trace.
package logmod

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hearthd/hearthd/pkg/kernel/errs"
	"github.com/hearthd/hearthd/pkg/plugin"
	"github.com/hearthd/hearthd/pkg/reqlog"
	"github.com/hearthd/hearthd/pkg/services"
)

// ServiceLog is the service name plugins call to log.
const ServiceLog = "logger.log"

// Module is the logger module. REQUIRED.
type Module struct {
	plugin.Base
	requests *reqlog.Store
	logger   *slog.Logger
	host     plugin.Host
}

// New creates the logger module over the request trace store.
func New(requests *reqlog.Store) *Module {
	return &Module{requests: requests}
}

func (m *Module) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "logger",
		Version:     "1.0.0",
		Description: "structured logging service with operation correlation",
	}
}

func (m *Module) OnLoad(ctx context.Context, host plugin.Host) error {
	m.host = host
	m.logger = host.Logger().With("component", "logmod")
	return host.Services().Register(ServiceLog, m.logService)
}

func (m *Module) OnUnload(ctx context.Context) error {
	m.host.Services().Unregister(ServiceLog)
	m.host = nil
	return nil
}

// logService handles logger.log(level, message, **context). The line is
// written to the process log and appended to the caller's operation trace.
func (m *Module) logService(ctx context.Context, args services.Args) (any, error) {
	if len(args.Positional) < 2 {
		return nil, fmt.Errorf("%w: log needs level and message", errs.ErrInvalidInput)
	}
	level, ok1 := args.Positional[0].(string)
	message, ok2 := args.Positional[1].(string)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: level and message must be strings", errs.ErrInvalidInput)
	}

	attrs := make([]any, 0, len(args.Keyword)*2)
	for k, v := range args.Keyword {
		attrs = append(attrs, k, v)
	}

	switch level {
	case "debug":
		m.logger.Debug(message, attrs...)
	case "warn", "warning":
		m.logger.Warn(message, attrs...)
	case "error":
		m.logger.Error(message, attrs...)
	default:
		m.logger.Info(message, attrs...)
	}

	if opID := reqlog.OperationIDFrom(ctx); opID != "" {
		m.requests.Log(opID, level, message, args.Keyword)
	}
	return nil, nil
}
