// Package shared holds cross-cutting helpers that belong to no single
// domain package.
//
// Its only subpackage today is testutil, which provides a buffered slog
// handler plus assertion helpers for exercising log output in tests:
//
//	logger, captured := testutil.NewTestLogger(t)
//	doWork(logger)
//	testutil.AssertLogContains(t, captured, slog.LevelInfo, "work done")
//
// Keep this tree free of business logic; anything carrier- or
// report-specific belongs in its own package.
package shared
