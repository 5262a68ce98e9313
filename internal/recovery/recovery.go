// Package recovery guards the session runtime's background goroutines
// against panics in handler code or the codec, so one bad frame or a
// misbehaving opcode handler can't bring down the whole process.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// RecoverWithLog recovers a panic and logs it under name. Used to protect
// goroutines that have no further cleanup of their own to run, such as the
// serve command's shutdown watcher.
func RecoverWithLog(logger *slog.Logger, name string) {
	if r := recover(); r != nil {
		logger.Error("panic recovered",
			"goroutine", name,
			"panic", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()))
	}
}

// RecoverWithCallback recovers a panic, logs it under name, and invokes
// callback with the recovered value so the caller can react — close a
// session, record a fault metric — before the goroutine unwinds further.
func RecoverWithCallback(logger *slog.Logger, name string, callback func(recovered interface{})) {
	if r := recover(); r != nil {
		logger.Error("panic recovered",
			"goroutine", name,
			"panic", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()))
		if callback != nil {
			callback(r)
		}
	}
}
