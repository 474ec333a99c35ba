// Package server hosts the Fiber HTTP service, the request middleware chain
// and the route table that maps /{ecosystem}/{cutoff}/{identifier} onto the
// configured registries. It also owns the shared upstream http.Client.
// Keep exports narrow and accept explicit dependencies so proxy and routes
// can be tested against fake handlers.
package server
