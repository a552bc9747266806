// Package retry implements bounded exponential backoff with jitter as a pure
// decorator around backend submissions. No hidden global state: attempt
// limits, delays, the jitter source, and the sleep function are all injected.
package retry
