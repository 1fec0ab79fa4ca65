// Package capture talks to the browser-automation sidecar over gRPC.
//
// The sidecar exposes sitegrade.capture.v1.CaptureService with two unary
// methods using protobuf well-known types, so no generated stubs are needed:
//
//	CaptureMetrics(google.protobuf.StringValue) returns (google.protobuf.Struct)
//	Screenshot(google.protobuf.StringValue) returns (google.protobuf.BytesValue)
//
// The Struct is the raw metrics snapshot (performance, securityHeaders, seo,
// lighthouse, ui, accessibility, functionality and free-form extras).
package capture
