// Package plugin implements the lifecycle layer: the plugin contract, the
// manifest format, the compiled-in factory registry, and the manager that
// discovers, orders, loads, and isolates plugins.
package plugin

import (
	"context"
	"log/slog"

	"github.com/hearthd/hearthd/pkg/bus"
	"github.com/hearthd/hearthd/pkg/httpreg"
	"github.com/hearthd/hearthd/pkg/services"
	"github.com/hearthd/hearthd/pkg/state"
	"github.com/hearthd/hearthd/pkg/storage"
)

// Metadata describes a plugin. Dependencies are plugin names that must be
// loaded first; the manifest's list overrides whatever the plugin declares.
type Metadata struct {
	Name         string   `json:"name"`
	Version      string   `json:"version"`
	Description  string   `json:"description,omitempty"`
	Author       string   `json:"author,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
}

// Host is the non-owning view of the runtime handed to plugins. Plugins hold
// it between OnLoad and OnUnload and must not retain it afterwards.
type Host interface {
	Services() *services.Registry
	Events() *bus.Bus
	State() *state.Engine
	Storage() *storage.Mirror
	HTTP() *httpreg.Registry
	Logger() *slog.Logger
}

// Plugin is the lifecycle contract. OnLoad is where a plugin registers its
// services, event subscriptions, and HTTP contracts; OnUnload must exactly
// undo OnLoad. Any hook may be a no-op.
type Plugin interface {
	Metadata() Metadata
	OnLoad(ctx context.Context, host Host) error
	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
	OnUnload(ctx context.Context) error
}

// Base is a convenience embedding with no-op hooks.
type Base struct{}

func (Base) OnLoad(context.Context, Host) error { return nil }
func (Base) OnStart(context.Context) error      { return nil }
func (Base) OnStop(context.Context) error       { return nil }
func (Base) OnUnload(context.Context) error     { return nil }
