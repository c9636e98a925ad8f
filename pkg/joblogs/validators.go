package joblogs

// ListLogsQuery binds the out-of-scope HTTP collaborator's query params for
// GET /jobs/:id/logs onto ListLogsOptions.
type ListLogsQuery struct {
	AfterID string   `query:"after_id" json:"after_id,omitempty"`
	Level   []string `query:"level" json:"level,omitempty" validate:"dive,oneof=error warn info debug"`
	Limit   int      `query:"limit" json:"limit,omitempty" validate:"omitempty,min=1,max=2000"`
}
