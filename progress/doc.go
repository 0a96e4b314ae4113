// Package progress tracks how many workers of a scenario run are pending,
// running, completed, failed or killed.
package progress
