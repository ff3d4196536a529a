// Package services holds the business logic between the HTTP handlers
// and the session store.
//
// ReportService runs the invoice pipeline. Upload parses a carrier
// invoice export, reduces it to the charge table, and stores it under
// the browser session; SetSelection, SelectAll, and ResetSelection
// adjust which charge categories the session has toggled on; View
// derives the visible table and category summaries from whatever is
// stored; Export renders the current view as CSV for download. Every
// mutation ends with a refresh broadcast so other tabs on the same
// session re-fetch.
//
// State lives in the session store keyed by (session, carrier). The
// service never caches derived tables; each View recomputes from the
// stored table and selection so the two cannot drift.
//
// HealthService answers the health, readiness, version, and stats
// endpoints from the session store, the websocket hub, and the data
// directory.
//
// Tests inject a mock hub and drive the service directly:
//
//	hub := new(MockWebSocketHub)
//	service, _ := NewReportServiceWithLogger(cfg, store, hub, logger)
//
//	hub.On("BroadcastReportRefresh", domain.CarrierFedEx, "session-1").Return()
//	result, err := service.Upload(ctx, "session-1", domain.CarrierFedEx, name, data)
package services
