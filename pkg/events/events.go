// Package events defines the CoreEvent tagged union and a
// broadcast Hub that fans events out to subscribers without blocking
// producers. Transport (websocket/SSE/etc.) is out of scope; this package
// only owns the fan-out and wire encoding.
package events

import (
	"github.com/segmentio/encoding/json"
)

// Kind tags a CoreEvent's variant for wire encoding and type switches.
type Kind string

const (
	KindJobStarted                Kind = "job_started"
	KindJobUpdate                 Kind = "job_update"
	KindJobOutput                 Kind = "job_output"
	KindDiscoveredMissingLibrary  Kind = "discovered_missing_library"
	KindCreatedMedia              Kind = "created_media"
	KindCreatedManySeries         Kind = "created_many_series"
	KindCreatedOrUpdatedManyMedia Kind = "created_or_updated_many_media"
)

// CoreEvent is the tagged union. Exactly one of the variant fields
// is populated, selected by Kind; the rest stay at their zero value and are
// omitted from the JSON encoding.
type CoreEvent struct {
	Kind Kind `json:"kind"`

	JobStarted                *JobStarted                `json:"job_started,omitempty"`
	JobUpdate                 *JobUpdate                 `json:"job_update,omitempty"`
	JobOutput                 *JobOutput                 `json:"job_output,omitempty"`
	DiscoveredMissingLibrary  *DiscoveredMissingLibrary  `json:"discovered_missing_library,omitempty"`
	CreatedMedia              *CreatedMedia              `json:"created_media,omitempty"`
	CreatedManySeries         *CreatedManySeries         `json:"created_many_series,omitempty"`
	CreatedOrUpdatedManyMedia *CreatedOrUpdatedManyMedia `json:"created_or_updated_many_media,omitempty"`
}

type JobStarted struct {
	ID string `json:"id"`
}

type JobUpdate struct {
	ID          string  `json:"id"`
	CurrentTask *int    `json:"current_task,omitempty"`
	TaskCount   int     `json:"task_count"`
	Message     *string `json:"message,omitempty"`
	Status      string  `json:"status"`
}

type JobOutput struct {
	ID     string `json:"id"`
	Output []byte `json:"output"`
}

type DiscoveredMissingLibrary struct {
	Path string `json:"path"`
}

type CreatedMedia struct {
	ID       string `json:"id"`
	SeriesID string `json:"series_id"`
}

type CreatedManySeries struct {
	Count     int    `json:"count"`
	LibraryID string `json:"library_id"`
}

type CreatedOrUpdatedManyMedia struct {
	Count    int    `json:"count"`
	SeriesID string `json:"series_id"`
}

func NewJobStarted(id string) CoreEvent {
	return CoreEvent{Kind: KindJobStarted, JobStarted: &JobStarted{ID: id}}
}

func NewJobUpdate(id string, currentTask *int, taskCount int, message *string, status string) CoreEvent {
	return CoreEvent{Kind: KindJobUpdate, JobUpdate: &JobUpdate{
		ID: id, CurrentTask: currentTask, TaskCount: taskCount, Message: message, Status: status,
	}}
}

func NewJobOutput(id string, output []byte) CoreEvent {
	return CoreEvent{Kind: KindJobOutput, JobOutput: &JobOutput{ID: id, Output: output}}
}

func NewDiscoveredMissingLibrary(path string) CoreEvent {
	return CoreEvent{Kind: KindDiscoveredMissingLibrary, DiscoveredMissingLibrary: &DiscoveredMissingLibrary{Path: path}}
}

func NewCreatedMedia(id, seriesID string) CoreEvent {
	return CoreEvent{Kind: KindCreatedMedia, CreatedMedia: &CreatedMedia{ID: id, SeriesID: seriesID}}
}

func NewCreatedManySeries(count int, libraryID string) CoreEvent {
	return CoreEvent{Kind: KindCreatedManySeries, CreatedManySeries: &CreatedManySeries{Count: count, LibraryID: libraryID}}
}

func NewCreatedOrUpdatedManyMedia(count int, seriesID string) CoreEvent {
	return CoreEvent{Kind: KindCreatedOrUpdatedManyMedia, CreatedOrUpdatedManyMedia: &CreatedOrUpdatedManyMedia{Count: count, SeriesID: seriesID}}
}

// Marshal encodes a CoreEvent for an out-of-scope transport to ship
// verbatim over its wire (websocket frame, SSE data line, …).
func Marshal(event CoreEvent) ([]byte, error) {
	return json.Marshal(event)
}
