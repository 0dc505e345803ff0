// Package ratelimit provides an adaptive rate limiter that spaces requests
// per endpoint and tunes the spacing from observed outcomes. Throttling
// responses grow the delay exponentially; sustained success shrinks it back
// toward a floor that itself adapts to pressure.
package ratelimit
