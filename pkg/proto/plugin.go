package proto

import (
	"context"

	"autovader.dev/cmd/pkg/check"
	"autovader.dev/cmd/pkg/traffic"
)

type Interface interface {
	Name() string
	// Plugin returns the config of a new plugin instance, or nil when the
	// plugin cannot be declared as a job plugin.
	Plugin(context.Context, *P) any
	// Step returns the config of a new step, or nil when the plugin has
	// no steps.
	Step(context.Context, *P) any
}

// Subscriber is a traffic source. Replayed sources close the channel once
// every flow was sent; live ones close it when ctx is done.
type Subscriber interface {
	Subscribe(context.Context) <-chan traffic.Flow
}

// Live is implemented by sources that never run out of flows.
type Live interface {
	Live() bool
}

type Initializer interface {
	Init(context.Context, *Job) error
}

type Runner interface {
	Run(context.Context, *check.S) error
	Stop()
}
