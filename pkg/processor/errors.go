package processor

import (
	"errors"

	"github.com/pdfme/transformer-service/pkg/sink"
	"github.com/pdfme/transformer-service/pkg/transform"
	"github.com/pdfme/transformer-service/pkg/types"
)

// Stage names the step of a job that failed.
type Stage string

const (
	StageDecode    Stage = "decode"
	StageTransform Stage = "transform"
	StagePersist   Stage = "persist"
	StageUpload    Stage = "upload"
	StageUnknown   Stage = "unknown"
)

// StageError tags a job failure with the stage that produced it. Its message
// is the message of the wrapped error.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string { return e.Err.Error() }

func (e *StageError) Unwrap() error { return e.Err }

// StageOf classifies err by the stage that produced it.
func StageOf(err error) Stage {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Stage
	}

	var (
		decodeErr  *types.DecodeError
		failure    *transform.Failure
		persistErr *sink.PersistError
		uploadErr  *sink.UploadError
	)
	switch {
	case errors.As(err, &decodeErr):
		return StageDecode
	case errors.As(err, &failure):
		return StageTransform
	case errors.As(err, &persistErr):
		return StagePersist
	case errors.As(err, &uploadErr):
		return StageUpload
	default:
		return StageUnknown
	}
}
