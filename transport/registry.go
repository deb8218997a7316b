package transport

import "fmt"

// Factory builds a Transport for one kind of node address ("local",
// "ssh", "loopback"). cmd/syncr does not use this registry: it builds
// its transports directly from each node address.
type Factory func() Transport

var registry = make(map[string]Factory)

// Register associates key with f. Nothing registers from package init: a
// Local transport's ServeFunc closes over the calling program's
// serveengine wiring and can't be constructed from a bare key.
func Register(key string, f Factory) {
	registry[key] = f
}

// Create builds the Transport registered under key.
func Create(key string) (Transport, error) {
	f, ok := registry[key]
	if !ok {
		return nil, fmt.Errorf("transport: key %q not found in registry", key)
	}
	return f(), nil
}
