// Command browserfetch is the client for the browserfetchd daemon. It
// installs browsers, inspects and retries download tasks, manages the
// installed-browser catalog and tails daemon logs over the unix socket.
package main
