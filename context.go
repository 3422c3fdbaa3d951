package warden

import "context"

type clientIPContextKey struct{}
type routeContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The Engine records it
// on audit events; middleware.RateLimit sets it before calling the handler.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithRoute attaches the matched route path to ctx for audit events.
func WithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, routeContextKey{}, route)
}

// ClientIPFromContext returns the IP set by WithClientIP.
func ClientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	route, _ := ctx.Value(routeContextKey{}).(string)
	return route
}
