// Package handlers holds the reusable pieces of the HTTP interface: health
// checks and middleware.
//
// Health checks run in parallel, each under its own timeout:
//
//	checker := handlers.NewHealthChecker(version)
//	checker.AddCheck("postgres", true, handlers.PingCheck(pool))
//	checker.AddCheck("redis", false, handlers.PingCheck(cache))
//
// A failing non-critical check marks the service not ready but still healthy.
//
// API keys are stored as bcrypt hashes; generate one with
//
//	htpasswd -bnBC 10 "" <key> | tr -d ':\n'
package handlers
