// Package api implements the HTTP REST API and WebSocket server for the
// Edgeberry core.
//
// This package provides:
//   - direct method invocation against owned devices
//   - the claim and release workflow
//   - admin onboarding, device listing and the audit log
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - a WebSocket hub pushing command and ownership events
//   - health, JSON metrics and Prometheus exposition
//
// # Status mapping
//
// Bridge and claim errors map onto HTTP status codes: a device that never
// answers is 504, a command that could not be published is 502, and a
// device that already has an owner is 409.
package api
