package goutil

import (
	"log"
	"runtime/debug"
)

// SafeGo starts fn on a new goroutine. The curses UI owns the terminal and
// swallows anything written to stdout, so panics are captured in the logger
// before crashing out again.
func SafeGo(logger *log.Logger, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Printf("PANIC: %v\n%s", r, debug.Stack())
				panic(r)
			}
		}()
		fn()
	}()
}
