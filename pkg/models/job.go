package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Job status values. Transitions are total: Queued -> Running ->
// {Completed, Failed, Cancelling -> Cancelled}; a job whose Init fails goes
// Queued -> Failed without reaching Running.
const (
	//tygo:emit export type JobStatus = typeof JobStatusQueued | typeof JobStatusRunning | typeof JobStatusPaused | typeof JobStatusCancelling | typeof JobStatusCancelled | typeof JobStatusCompleted | typeof JobStatusFailed;
	JobStatusQueued     = "queued"
	JobStatusRunning    = "running"
	JobStatusPaused     = "paused"
	JobStatusCancelling = "cancelling"
	JobStatusCancelled  = "cancelled"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job types registered with the job engine's dispatch table.
const (
	//tygo:emit export type JobType = typeof JobTypeScan | typeof JobTypeThumbnailGeneration;
	JobTypeScan                = "scan"
	JobTypeThumbnailGeneration = "thumbnail_generation"
)

// Job is the persisted lifecycle row for a unit of background work. SaveState
// and OutputData are opaque bytes (JSON) owned by the job implementation;
// the engine only stores and returns them.
type Job struct {
	bun.BaseModel `bun:"table:jobs,alias:j" tstype:"-"`

	ID          string     `bun:",pk,nullzero" json:"id"`
	Name        string     `bun:",nullzero" json:"name" tstype:"JobType"`
	Description *string    `json:"description,omitempty"`
	Status      string     `bun:",nullzero" json:"status" tstype:"JobStatus"`
	LibraryID   *string    `json:"library_id,omitempty"`
	SaveState   *string    `json:"-"`
	OutputData  *string    `json:"-"`
	MsElapsed   int64      `json:"ms_elapsed"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
