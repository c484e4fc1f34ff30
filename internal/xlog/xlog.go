// Package xlog is the engine's logging helper. The teacher has no
// structured logger — utils.Err wraps fmt.Printf with a caller file:line
// prefix and returns the error unchanged so the caller can still propagate
// it. This generalises that same "log at the origin, still return it"
// discipline for the region server's background actors (flush, compaction,
// split), which run unattended and need their failures attributed to a
// named actor rather than just a file:line.
package xlog

import (
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

var std = log.New(os.Stderr, "", log.LstdFlags)

func location(deep int) string {
	_, file, line, ok := runtime.Caller(deep)
	if !ok {
		file = "???"
		line = 0
	}
	return filepath.Base(file) + ":" + strconv.Itoa(line)
}

// Errorf logs err attributed to actor (e.g. "flush", "compact", "split")
// and returns it unchanged, so call sites can write `return xlog.Errorf(...)`.
func Errorf(actor string, err error) error {
	if err != nil {
		std.Printf("[%s] %s %+v", actor, location(2), err)
	}
	return err
}

// Infof logs an informational line attributed to actor.
func Infof(actor, format string, args ...interface{}) {
	std.Printf("[%s] "+format, append([]interface{}{actor}, args...)...)
}
