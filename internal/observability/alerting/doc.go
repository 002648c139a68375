// Package alerting fans alert events out to the configured notification
// channels. Events are raised for failures that need an operator, such as a
// submission whose outcome is unknown.
package alerting
