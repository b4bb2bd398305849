package sequencer

import (
	"time"

	"github.com/dokzlo13/sunrised/internal/config"
	"github.com/dokzlo13/sunrised/internal/syncsvc"
)

// StateIdle is reported between sessions.
const StateIdle = "idle"

// Status is a point-in-time view of the loop.
type Status struct {
	Mode        config.Mode     `json:"mode"`
	State       string          `json:"state"`
	SessionID   string          `json:"session_id,omitempty"`
	BootedAt    time.Time       `json:"booted_at"`
	LastTrigger string          `json:"last_trigger,omitempty"`
	LastSync    *syncsvc.Result `json:"last_sync,omitempty"`
}
