package wire // import "autovader.dev/cmd/pkg/plugin/builtin/scan/wire"

import (
	"autovader.dev/cmd/pkg/proto/wire"
)

type Step struct {
	Kind  string      `json:"kind,omitempty"`
	Match wire.Object `json:"match,omitempty"`
	URLs  []string    `json:"urls,omitempty"`

	// From names the job plugins the step reads flows from. Empty means
	// every source of the job.
	From []string `json:"from,omitempty"`

	// Follow queues batches per flow as decided by Rules instead of
	// scanning the collected flows as one batch.
	Follow bool   `json:"follow,omitempty"`
	Rules  string `json:"rules,omitempty"`
}
