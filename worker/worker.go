package worker

import "github.com/absmach/fedcoord/pkg/fl"

// Worker is a remote participant configured at startup.
type Worker struct {
	ID      string  `json:"id"                toml:"id"`
	Name    string  `json:"name"              toml:"name"`
	Address string  `json:"address"           toml:"address"`
	Role    fl.Role `json:"role"              toml:"role"`
	Classes string  `json:"classes,omitempty" toml:"classes"`
	Samples uint64  `json:"samples"           toml:"-"`
	Online  bool    `json:"online"            toml:"-"`
}

type WorkerPage struct {
	Offset  uint64   `json:"offset"`
	Limit   uint64   `json:"limit"`
	Total   uint64   `json:"total"`
	Workers []Worker `json:"workers"`
}
