// Package api serves the daemon over HTTP with gin and defines the JSON
// shapes shared by the HTTP API and the IPC socket.
//
// # Routes
//
//	GET    /api/status               daemon status
//	GET    /api/tasks                live tasks plus history (?limit=)
//	POST   /api/tasks                start a download
//	GET    /api/tasks/:id            one task
//	POST   /api/tasks/:id/retry      manual retry of a failed task
//	DELETE /api/tasks/:id            abort and forget a task
//	GET    /api/tasks/:id/retries    retry coordinator history
//	DELETE /api/tasks/:id/retries    discard retry history
//	GET    /api/browsers             installed browsers
//	DELETE /api/browsers/:id         uninstall (?keep_files=1 keeps the directory)
//	GET    /api/logs                 log stream (?since, limit, follow, tail, task, component)
//	GET    /api/events               websocket of status and progress envelopes
//
// When a token is configured every route requires
// "Authorization: Bearer <token>". Browsers cannot set headers on websocket
// upgrades, so /api/events also accepts ?token=.
//
// DTOs use camelCase JSON tags, matching the event payloads. Errors are
// {"error": "..."} with the status code derived from services.HTTPStatus.
package api
