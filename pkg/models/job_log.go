package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Log levels. A Log's JobID is optional; a Log may be emitted outside
// of any job.
const (
	//tygo:emit export type LogLevel = typeof LogLevelError | typeof LogLevelWarn | typeof LogLevelInfo | typeof LogLevelDebug;
	LogLevelError = "error"
	LogLevelWarn  = "warn"
	LogLevelInfo  = "info"
	LogLevelDebug = "debug"
)

// Log is a structured log line, optionally scoped to a Job. Logs are
// owned by the Job they're emitted under and cascade-deleted with it.
type Log struct {
	bun.BaseModel `bun:"table:logs,alias:lg" tstype:"-"`

	ID        string    `bun:",pk,nullzero" json:"id"`
	Level     string    `bun:",nullzero" json:"level" tstype:"LogLevel"`
	Message   string    `bun:",nullzero" json:"message"`
	Timestamp time.Time `json:"timestamp"`
	JobID     *string   `json:"job_id,omitempty"`
	Context   *string   `json:"context,omitempty"`
}
