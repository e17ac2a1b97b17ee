package engine

import (
	"errors"
	"fmt"
)

// ErrConfig matches every ConfigError via errors.Is.
var ErrConfig = errors.New("configuration error")

// ErrBatchUsed is returned when Run is called on a batch that already ran.
var ErrBatchUsed = errors.New("batch already ran")

// ConfigError reports a structural misconfiguration. It is raised before any
// record is processed.
type ConfigError struct {
	Component string
	Ref       string
	Msg       string
}

func (e *ConfigError) Error() string {
	if e.Ref == "" {
		return fmt.Sprintf("%s: %s", e.Component, e.Msg)
	}
	return fmt.Sprintf("%s %q: %s", e.Component, e.Ref, e.Msg)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func configErrorf(component, ref, format string, args ...any) error {
	return &ConfigError{Component: component, Ref: ref, Msg: fmt.Sprintf(format, args...)}
}
