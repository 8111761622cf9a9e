package export

import (
	"errors"
	"fmt"
)

// Status is the run outcome reported to the scheduler/CLI. The three failure
// shapes stay distinguishable; a disabled run is a successful no-op, never
// silently identical to a real export.
type Status int

const (
	StatusOK Status = iota
	StatusNoOp
	StatusConfigError
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoOp:
		return "noop"
	case StatusConfigError:
		return "config_error"
	default:
		return "error"
	}
}

// ErrStepDisabled signals that the job step is switched off; the run is a
// no-op success.
var ErrStepDisabled = errors.New("export step is disabled")

// ErrRunClosed is returned by run-handle operations after Close.
var ErrRunClosed = errors.New("export run is closed")

// ConfigError is a missing or invalid run parameter. It aborts the run at
// open, before any output is produced.
type ConfigError struct {
	Param  string
	Detail string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid export configuration: %s: %s", e.Param, e.Detail)
}

// ResourceError means the output destination could not be provisioned.
type ResourceError struct {
	Op   string
	Path string
	Err  error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("export resource failure: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }
