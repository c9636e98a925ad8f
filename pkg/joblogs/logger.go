package joblogs

import (
	"context"

	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"
	"github.com/shishobooks/shisho/pkg/models"
)

const maxContextValueLen = 1024

// JobLogger fans a Worker's log lines out to stdout and to the Log table in
// the same call, so a library scan or thumbnail job's console trail and its
// persisted, API-visible trail never drift apart.
type JobLogger struct {
	jobID   string
	service *Service
	log     logger.Logger
	ctx     context.Context
}

// NewJobLogger scopes a JobLogger to a single Job.
func (svc *Service) NewJobLogger(ctx context.Context, jobID string, log logger.Logger) *JobLogger {
	return &JobLogger{
		jobID:   jobID,
		service: svc,
		log:     log.Data(logger.Data{"job_id": jobID}),
		ctx:     ctx,
	}
}

func (l *JobLogger) Debug(msg string, data logger.Data) {
	l.log.Debug(msg, data)
	l.persist(models.LogLevelDebug, msg, data)
}

func (l *JobLogger) Info(msg string, data logger.Data) {
	l.log.Info(msg, data)
	l.persist(models.LogLevelInfo, msg, data)
}

func (l *JobLogger) Warn(msg string, data logger.Data) {
	l.log.Warn(msg, data)
	l.persist(models.LogLevelWarn, msg, data)
}

func (l *JobLogger) Error(msg string, err error, data logger.Data) {
	if data == nil {
		data = logger.Data{}
	}
	if err != nil {
		data["error"] = err.Error()
	}
	l.log.Err(err).Error(msg, data)
	l.persist(models.LogLevelError, msg, data)
}

func (l *JobLogger) persist(level, msg string, data logger.Data) {
	var contextStr *string
	if len(data) > 0 {
		s := formatContext(data)
		if s != "" {
			if len(s) > maxContextValueLen {
				s = truncateMiddle(s, maxContextValueLen)
			}
			contextStr = &s
		}
	}

	jobID := l.jobID
	log := &models.Log{
		Level:   level,
		Message: msg,
		JobID:   &jobID,
		Context: contextStr,
	}

	// Logging failures must never interrupt the job itself.
	_ = l.service.Append(l.ctx, log)
}

func formatContext(data logger.Data) string {
	b, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return string(b)
}

func truncateMiddle(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	half := (maxLen - 5) / 2
	return s[:half] + " ... " + s[len(s)-half:]
}
