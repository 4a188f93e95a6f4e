package domain

import (
	"errors"
	"fmt"
)

type Error struct {
	orig error
	msg  string
	code error
}

func (e *Error) Error() string {
	if e.orig != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.orig)
	}

	return e.msg
}

func (e *Error) Unwrap() error {
	return e.orig
}

func (e *Error) Code() error {
	return e.code
}

func WrapErrorf(orig error, code error, format string, a ...interface{}) error {
	return &Error{
		code: code,
		orig: orig,
		msg:  fmt.Sprintf(format, a...),
	}
}

var (
	// ErrNoGraphLoaded will throw if a routing request arrives before a region graph is opened
	ErrNoGraphLoaded = errors.New("no graph loaded for region")
	// ErrPointNotOnTrail will throw if a coordinate cannot be snapped to any routable trail node
	ErrPointNotOnTrail = errors.New("point is not near any routable trail")
	// ErrNoPathFound will throw if start and end lie on disconnected components
	ErrNoPathFound = errors.New("no path found")
	// ErrViaPointUnreachable will throw if a via point cannot be reached from its neighbouring waypoints
	ErrViaPointUnreachable = errors.New("via point unreachable")
	// ErrStoreCorrupted will throw if a region store has unexpected schema or content
	ErrStoreCorrupted = errors.New("region store corrupted")
	// ErrStoreIO will throw on any region store read/write failure
	ErrStoreIO = errors.New("region store i/o failure")
	// ErrBadParamInput will throw if the given request-body or params is not valid
	ErrBadParamInput = errors.New("given Param is not valid")
	// ErrInternalServerError will throw if any the Internal Server Error happen
	ErrInternalServerError = errors.New("internal Server Error")
)

// PointNotOnTrailError carries the offending coordinate so the caller can
// tell the user which point is the problem. ViaIndex is -1 for the start or
// end point.
type PointNotOnTrailError struct {
	Lat      float64
	Lon      float64
	Which    string
	ViaIndex int
}

func (e *PointNotOnTrailError) Error() string {
	if e.ViaIndex >= 0 {
		return fmt.Sprintf("via point %d (%f, %f) is not near any routable trail", e.ViaIndex, e.Lat, e.Lon)
	}
	return fmt.Sprintf("%s point (%f, %f) is not near any routable trail", e.Which, e.Lat, e.Lon)
}

// ViaPointUnreachableError names the disconnected leg of a multi-waypoint
// request.
type ViaPointUnreachableError struct {
	Index int
	Lat   float64
	Lon   float64
}

func (e *ViaPointUnreachableError) Error() string {
	return fmt.Sprintf("no path reaches via point %d (%f, %f)", e.Index, e.Lat, e.Lon)
}
