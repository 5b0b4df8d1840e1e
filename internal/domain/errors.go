package domain

import "errors"

var (
	// ErrOutOfOrder is returned when a version record does not strictly follow
	// the latest record of a history.
	ErrOutOfOrder = errors.New("version record is not newer than the latest record")

	// ErrDuplicateID is returned when a collection already holds an announcement
	// with the same id.
	ErrDuplicateID = errors.New("duplicate announcement id")

	// ErrCorruptState marks a persisted document that exists but cannot be
	// decoded. Writers must not overwrite it.
	ErrCorruptState = errors.New("persisted state is corrupt")

	// ErrInvalidObservation marks an observation that cannot be processed at all.
	ErrInvalidObservation = errors.New("invalid observation")
)
