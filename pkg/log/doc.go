// Package log is slotweave's small logging layer on top of the standard
// library logger.
//
// Every subsystem takes a named logger with ForService and writes lines
// prefixed with "[name>]":
//
//	l := log.ForService("resolver")
//	l.Infof("resolved %d slots", n)
//	l.Warnf("component %s has no Fragment method", ref)
//	l.Debugf("data key %s", key) // only with debug enabled
//
// Debug output is enabled globally with SetGlobalDebug or per service with
// EnableDebugFor. SetOutput redirects every logger, which is how tests
// capture output.
//
// Request handling attaches a request-scoped logger to the context with
// WithContext; code below the HTTP layer calls FromContext and falls back to
// a named default logger when none was attached. A request logger adds the
// request id to the prefix: "[server>] [req=...]".
package log
