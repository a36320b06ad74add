package provider

import (
	"net"
	"net/http"
	"time"
)

func pooledTransport(headerTimeout time.Duration) *http.Transport {
	return &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: headerTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
}

// SharedHTTPClient returns an HTTP client with connection pooling and an
// overall request timeout. Use this instead of creating individual clients
// per caller.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: pooledTransport(timeout),
	}
}

// StreamingHTTPClient returns a pooled client with no overall timeout.
// A streamed completion can legitimately outlive any fixed budget, so only
// the time to the first response byte is bounded; cancellation beyond that
// is the caller's context.
func StreamingHTTPClient() *http.Client {
	return &http.Client{
		Transport: pooledTransport(60 * time.Second),
	}
}
