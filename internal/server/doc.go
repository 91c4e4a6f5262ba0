// Package server hosts the Fiber HTTP service and its middleware chain: panic
// recovery, request IDs, identity extraction from a trusted header, and a
// structured access log. Route handlers live in the routes subpackage and only
// translate HTTP requests into gallery calls, so keep exports narrow and accept
// explicit dependencies.
package server
