// Package app assembles and runs one Parcel Pulse process. It is the
// only package that knows about every other one: it loads config,
// builds the logger and OpenTelemetry providers, wires the session
// store, websocket hub and services together, lays out the route tree
// and owns the HTTP server's lifecycle.
//
// # Boot sequence
//
// NewApplication performs the whole wiring pass up front and fails fast
// on the first broken dependency:
//
//	config.Load -> logger -> OTel -> hub + store -> services -> router -> server
//
// Nothing starts listening until Run or Start is called, which keeps
// construction cheap enough for tests to build a real Application per
// test case.
//
// # Route layers
//
// The router is deliberately layered. The /ws upgrade and the static
// asset routes run with almost no middleware, because the websocket
// handshake cannot survive a wrapped ResponseWriter and fingerprinted
// assets need neither sessions nor CORS. Everything else, the JSON API
// and the SPA shell, runs inside the full group: tracing, logging,
// recovery, security headers, CORS, rate limiting and the session
// cookie.
//
// # Desktop launcher behavior
//
// The binary doubles as its own launcher. After the listener is up,
// Start polls the health endpoint and then opens the operator's
// default browser at the UI; if no browser can be launched the URL is
// printed to the console instead.
//
// # Shutdown
//
// Run blocks until SIGINT or SIGTERM, then Stop drains in-flight
// requests within the configured timeout, stops the hub, the metrics
// collector and the update checker, flushes telemetry and closes the
// log file last. Initialization and shutdown errors are returned to
// main rather than handled with os.Exit, so the process exit code
// stays in one place.
package app
