// Package services defines the shared vocabulary for talking to external
// media services: the sentinel error taxonomy every integration wraps its
// failures in, context helpers that carry scan identity through a pipeline
// run, the Integration interface all management-service clients implement,
// and the Guard transport that rate-limits and circuit-breaks outbound HTTP.
package services
