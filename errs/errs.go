// Package errs defines the closed set of sentinel errors for the engine's
// error kinds (spec 7), grounded on the teacher's utils/error.go
// (CondPanic/AssertTrue for programmer-error invariants, github.com/pkg/errors
// for everything recoverable). Call sites wrap these with errors.Wrapf to
// attach row/column/file context, matching the teacher's
// `errors.Wrapf(err, "while removing table %d", id)` idiom.
package errs

import (
	"log"

	"github.com/pkg/errors"
)

var (
	ErrRowOutOfRange        = errors.New("row out of range for region")
	ErrUnknownFamily        = errors.New("unknown column family")
	ErrRegionClosed         = errors.New("region closed")
	ErrDroppedSnapshot      = errors.New("dropped snapshot: flush failed before flush-complete, replay required")
	ErrInvalidColumnMatcher = errors.New("invalid column matcher")
	ErrMergePreconditions   = errors.New("regions do not satisfy merge preconditions")
	ErrRowLockExpired       = errors.New("row lock expired or unknown")
	ErrKeyNotFound          = errors.New("key not found")
	ErrAlreadyCompacting    = errors.New("store is already compacting")
	ErrAlreadyFlushing      = errors.New("store is already flushing")
	ErrNotSplitable         = errors.New("store is not splitable: contains a reference file")
)

// Panic panics on a non-nil error. Used, like the teacher's utils.Panic,
// only for conditions that indicate programmer error or corrupted on-disk
// state rather than a recoverable runtime condition.
func Panic(err error) {
	if err != nil {
		panic(err)
	}
}

func CondPanic(condition bool, err error) {
	if condition {
		Panic(err)
	}
}

func AssertTrue(b bool) {
	if !b {
		log.Fatalf("%+v", errors.Errorf("assertion failed"))
	}
}

func AssertTruef(b bool, format string, args ...interface{}) {
	if !b {
		log.Fatalf("%+v", errors.Errorf(format, args...))
	}
}
