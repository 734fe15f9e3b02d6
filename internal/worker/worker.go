package worker

import (
	"context"
	"io"

	"snowbotium/internal/models"
)

type JobType int

const (
	Upload JobType = iota
	Generate
	History
)

func (t JobType) String() string {
	switch t {
	case Upload:
		return "upload"
	case Generate:
		return "generate"
	case History:
		return "history"
	default:
		return "unknown"
	}
}

// Job is one user-triggered action queued on a session.
type Job struct {
	Type     JobType
	Context  context.Context
	Upload   *UploadRequest
	Generate *GenerateRequest
	resultCh chan workerReturn
}

type UploadRequest struct {
	SessionID string
	FileName  string
	Size      int64
	Body      io.Reader
}

type GenerateRequest struct {
	SessionID string
	Action    models.Action
}

// GenerateResult carries the responses of one action. StorageErr is set when
// persisting failed part way; Responses are still complete.
type GenerateResult struct {
	ID         int64
	Action     models.Action
	Responses  []string
	Persisted  int
	StorageErr error
}

type workerReturn struct {
	document *models.Document
	generate *GenerateResult
	history  []string
	err      error
}
