// Package http carries the HTTP handlers for the Parcel Pulse API. The
// handlers stay thin: they parse the request, call the report or health
// service, and render the result. Anything resembling business logic
// lives behind ReportServiceInterface so the handlers can be tested
// against a mock.
//
// # Routes
//
// The report handler serves one subtree per carrier:
//
//	POST   /api/reports/{carrier}/upload        - multipart invoice upload
//	GET    /api/reports/{carrier}               - current report view
//	PUT    /api/reports/{carrier}/selection     - replace category selection
//	POST   /api/reports/{carrier}/selection/all - select every category
//	DELETE /api/reports/{carrier}/selection     - clear the selection
//	GET    /api/reports/{carrier}/export        - CSV download of the visible table
//
// The carrier URL parameter is validated once by the CarrierCtx
// middleware; handlers downstream can assume it names a supported
// carrier. The session cookie assigned by the session middleware keys
// every lookup, so two browsers never see each other's uploads.
//
// # Errors
//
// Failures render as RFC 7807 problem documents. Service errors pass
// through the internal/errors mapping table, so a handler never builds
// a response body by hand:
//
//	{
//	    "type": "/errors/invoice/missing-columns",
//	    "title": "Missing Required Columns",
//	    "status": 422,
//	    "detail": "The uploaded invoice lacks columns the report cannot be built without.",
//	    "instance": "/api/reports/fedex/upload#trace-abc123"
//	}
//
// Upload rejections additionally carry the accepted extensions and the
// size limit so the web client can explain the failure without a second
// round trip.
//
// The tests in this package run the handlers against httptest servers
// with a stubbed service, asserting on status codes and rendered
// problem documents rather than on internals.
package http
