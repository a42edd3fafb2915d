// Package server hosts the Fiber application shell (recovery, request IDs,
// CORS, access logging, JSON error handling) and the shared outbound HTTP
// client. Route handlers live in the routes subpackage and are registered
// onto the app returned by NewApp.
package server
