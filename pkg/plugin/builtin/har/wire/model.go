package wire // import "autovader.dev/cmd/pkg/plugin/builtin/har/wire"

import (
	"encoding/json"

	"autovader.dev/cmd/pkg/rule"
)

type Config struct {
	File string `json:"file"`

	// Scope keeps only the entries of matching hosts; browser exports
	// carry every third-party request of the session.
	Scope rule.Scope `json:"scope,omitempty"`
}

func (c Config) String() string {
	p, _ := json.Marshal(c)
	return string(p)
}
