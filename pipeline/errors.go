package pipeline

import (
	"errors"
	"fmt"
)

// Sentinel causes for Send refusals, wrapped in *Error so transports can
// map them without string matching.
var (
	ErrNotFound    = errors.New("document not found")
	ErrAlreadySent = errors.New("document already sent")
	ErrNotReady    = errors.New("document not ready for signature")
)

// Stage names the pipeline step that failed.
type Stage string

const (
	StageDetect  Stage = "detect"
	StageConvert Stage = "convert"
	StageExtract Stage = "extract"
	StageRender  Stage = "render"
	StagePersist Stage = "persist"
	StageUpload  Stage = "upload"
	StageSend    Stage = "send"
)

// Error wraps a stage failure so callers can map it to a response without
// string matching.
type Error struct {
	Stage Stage
	Cause error
}

func (e *Error) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }
