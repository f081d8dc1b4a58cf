package esd

import "github.com/cockroachdb/errors"

// ErrSourceUnavailable is returned when the stored bytes of a resource cannot be read
var ErrSourceUnavailable = errors.New("resource source unavailable")

// ErrStreamFailure is returned when the coprocessor does not consume a resource's data stream successfully
var ErrStreamFailure = errors.New("resource stream failure")
