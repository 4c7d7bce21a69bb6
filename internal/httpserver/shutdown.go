package httpserver

import "time"

// ShutdownTimeout controls how long in-flight downloads get to finish once
// shutdown begins.
var ShutdownTimeout = 15 * time.Second
