// Package httputil provides the pooled HTTP clients and bounded response
// reading used by the embedding backends.
package httputil

import (
	"io"
	"net"
	"net/http"
	"sync"
	"time"
)

// MaxResponseSize bounds response body reads. Embedding responses are a few
// hundred KB at most; anything larger is a misbehaving upstream.
const MaxResponseSize = 10 * 1024 * 1024 // 10MB

// sharedTransport pools connections across all clients. Embedding calls hit
// the same upstream host repeatedly, so connection reuse matters.
var sharedTransport = &http.Transport{
	Proxy: http.ProxyFromEnvironment,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
	ForceAttemptHTTP2:     true,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   10,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
}

var (
	clientMedium *http.Client
	clientSlow   *http.Client
	clientOnce   sync.Once
)

func initClients() {
	clientMedium = &http.Client{Timeout: 30 * time.Second, Transport: sharedTransport}
	clientSlow = &http.Client{Timeout: 60 * time.Second, Transport: sharedTransport}
}

// MediumClient returns the shared 30s-timeout client for embedding API calls.
// Use this instead of constructing http.Client per request; all shared
// clients draw from one connection pool.
func MediumClient() *http.Client {
	clientOnce.Do(initClients)
	return clientMedium
}

// SlowClient returns the shared 60s-timeout client for long upstream
// operations such as batch embedding of the full exemplar corpus.
func SlowClient() *http.Client {
	clientOnce.Do(initClients)
	return clientSlow
}

// ReadResponseBody reads an HTTP response body with a size bound. A maxSize
// of zero or below falls back to MaxResponseSize.
func ReadResponseBody(r io.Reader, maxSize int64) ([]byte, error) {
	if maxSize <= 0 {
		maxSize = MaxResponseSize
	}
	return io.ReadAll(io.LimitReader(r, maxSize))
}

// DrainAndClose drains and closes a response body so the underlying
// connection returns to the pool.
func DrainAndClose(body io.ReadCloser) {
	if body != nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxResponseSize))
		_ = body.Close()
	}
}
