package composite

import "errors"

var (
	// ErrUnknownScript is returned when a script name is not registered.
	ErrUnknownScript = errors.New("unknown script")

	// ErrUnknownRatioPolicy is returned for an unrecognised ratio policy name.
	ErrUnknownRatioPolicy = errors.New("unknown ratio policy")
)
