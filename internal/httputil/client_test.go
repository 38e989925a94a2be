package httputil

import (
	"errors"
	"io"
	"net/http"
	"testing"
)

func TestStandardClient_Wraps(t *testing.T) {
	custom := &http.Client{}
	if got := NewStandardClient(custom); got.Client != custom {
		t.Error("expected custom client to be wrapped")
	}
	if got := NewStandardClient(nil); got.Client != http.DefaultClient {
		t.Error("expected nil to wrap http.DefaultClient")
	}
}

func TestMockHTTPClient_ReplaysQueue(t *testing.T) {
	mock := NewMockHTTPClient().
		AddResponse(http.StatusOK, `{"ai_ready":true}`).
		AddErrorResponse(errors.New("connection refused"))

	resp, err := mock.Get("http://localhost:8081/api/status")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(body) != `{"ai_ready":true}` {
		t.Errorf("got %d %q", resp.StatusCode, body)
	}

	if _, err := mock.Get("http://localhost:8081/api/status"); err == nil {
		t.Error("expected queued error")
	}

	resp, err = mock.Get("http://localhost:8081/healthz")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("exhausted queue status = %d, want 200", resp.StatusCode)
	}

	if mock.RequestCount() != 3 {
		t.Errorf("RequestCount() = %d, want 3", mock.RequestCount())
	}
	if got := mock.Requests[2].URL.Path; got != "/healthz" {
		t.Errorf("last path = %q", got)
	}
}
