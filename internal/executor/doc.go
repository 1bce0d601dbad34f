// Package executor implements download.Executor.
//
// Process runs an external helper script and parses its line protocol:
//
//	PROGRESS:{"progress":0.42,"downloaded_bytes":1024,"total_bytes":4096,"estimated_time_remaining":12}
//	VERSION:120.0.6099.109
//	COMPLETED:/path/to/install
//	ERROR:message
//
// Mirror fetches prebuilt zip archives from a gocloud blob bucket laid out as
// <browser>/<version>/<platform>.zip, with <browser>/stable.txt and
// <browser>/latest.txt naming the current versions.
//
// Both return errors whose text carries the underlying cause so the retry
// coordinator can classify it.
package executor
