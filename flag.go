package corio

import "sync/atomic"

// boolFlag is a tiny atomic boolean used for the scheduler's stopping
// flag, which must be readable from Stop's caller goroutine.
type boolFlag struct {
	v atomic.Bool
}

func (f *boolFlag) Store(b bool) { f.v.Store(b) }
func (f *boolFlag) Load() bool   { return f.v.Load() }
