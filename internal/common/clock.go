package common

import "time"

// Clock is the time source for anything derived from "now".
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock reads the wall clock.
func SystemClock() Clock { return systemClock{} }

// FixedClock always returns the same instant. Tests move it with Set.
type FixedClock struct {
	T time.Time
}

func (c *FixedClock) Now() time.Time { return c.T }

func (c *FixedClock) Set(t time.Time) { c.T = t }
