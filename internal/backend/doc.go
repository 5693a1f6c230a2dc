// Package backend declares the gateway's external collaborators.
//
// The gateway does not run agents or workflows itself and does not produce
// domain events; it consumes an Executor and an EventSource provided by the
// surrounding system. Tests and the default binary wiring substitute
// in-process implementations (see internal/events for the bus).
package backend
