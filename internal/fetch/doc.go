// Package fetch performs the HTTP GET of one listing page.
//
// Requests carry randomized browser headers and go through an optional proxy.
// Transport failures are retried by a bounded Policy; any non-200 status is
// reported as a *StatusError immediately.
package fetch
