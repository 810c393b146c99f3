package httputil

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestSharedClients(t *testing.T) {
	if MediumClient() != MediumClient() {
		t.Error("MediumClient should return the same instance on every call")
	}
	if MediumClient() == SlowClient() {
		t.Error("MediumClient and SlowClient should be distinct")
	}
	if got := MediumClient().Timeout; got != 30*time.Second {
		t.Errorf("MediumClient timeout = %v, want 30s", got)
	}
	if got := SlowClient().Timeout; got != 60*time.Second {
		t.Errorf("SlowClient timeout = %v, want 60s", got)
	}
	if MediumClient().Transport != SlowClient().Transport {
		t.Error("shared clients should use one transport pool")
	}
}

func TestReadResponseBody(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		maxSize int64
		wantLen int
	}{
		{"normal read", "hello world", 1024, 11},
		{"truncated read", strings.Repeat("x", 1000), 100, 100},
		{"default max size", "test", 0, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadResponseBody(strings.NewReader(tt.input), tt.maxSize)
			if err != nil {
				t.Fatalf("ReadResponseBody() error = %v", err)
			}
			if len(got) != tt.wantLen {
				t.Errorf("ReadResponseBody() len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestDrainAndClose(t *testing.T) {
	r := &trackingReader{Reader: bytes.NewReader([]byte("embedding response"))}
	DrainAndClose(io.NopCloser(r))
	if !r.fullyRead {
		t.Error("DrainAndClose should fully drain the body")
	}

	// Nil body must not panic
	DrainAndClose(nil)
}

type trackingReader struct {
	io.Reader
	fullyRead bool
}

func (r *trackingReader) Read(p []byte) (n int, err error) {
	n, err = r.Reader.Read(p)
	if err == io.EOF {
		r.fullyRead = true
	}
	return
}

func TestConnectionReuseAcrossRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := MediumClient()
	for i := 0; i < 10; i++ {
		resp, err := client.Get(server.URL)
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
		DrainAndClose(resp.Body)
	}
}
