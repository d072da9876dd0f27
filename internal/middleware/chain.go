package middleware

import "net/http"

// Chain applies middleware in order, first to last.
//
//	handler := Chain(mux,
//	    RequestLogging,  // outermost
//	    NonceMiddleware,
//	    Config(cfg),     // innermost
//	)
func Chain(h http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Route is Chain for a single handler func, used when registering routes.
func Route(h http.HandlerFunc, middlewares ...func(http.Handler) http.Handler) http.Handler {
	return Chain(h, middlewares...)
}
