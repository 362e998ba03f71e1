// Package decision selects the rover's driving behavior each cycle and
// computes its actuation.
//
// Responsibilities:
//   - evaluate the named event predicates over rover state (events.go)
//   - track continuous low-velocity intervals (stuck.go)
//   - run the behavior dispatch table: execute, then transition (machine.go)
//
// Dependency rules: decision reads the perception arrays written into
// rover.State but never imports perception. Time comes from timeutil.Clock.
package decision
