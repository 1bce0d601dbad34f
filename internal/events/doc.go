// Package events carries task status and progress notifications from the
// download orchestrator to interested observers.
//
// Publication is best effort and never blocks the publishing goroutine: Hub
// drops events for subscribers whose buffers are full and RedisSink queues
// events for a background writer. Multi fans one stream out to several
// publishers.
package events
