// Package notifications pushes task outcomes to an ntfy topic.
//
// The Notifier plugs into the daemon's event fan-out as a publisher. Only
// terminal status transitions (completed, failed) produce a notification;
// progress events are ignored. Delivery happens on a background goroutine so
// publishing never blocks the orchestrator, and a full queue drops messages.
package notifications
