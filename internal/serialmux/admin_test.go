package serialmux

import (
	"bufio"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"
)

// localHostRequest creates an httptest request that appears to come from localhost.
// This bypasses tsweb.AllowDebugAccess which checks for loopback IPs.
func localHostRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

func postCommand(httpMux *http.ServeMux, command string) *httptest.ResponseRecorder {
	form := url.Values{"command": {command}}
	req := localHostRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, req)
	return w
}

func TestAdminSendCommandAPI(t *testing.T) {
	port := NewTestableSerialPort()
	h := startLink(t, NewMockSerialPortFactory(port))
	waitFor(t, "announce", func() bool { return written(port) == "PI_READY\n" })

	httpMux := http.NewServeMux()
	h.link.AttachAdminRoutes(httpMux)

	tests := []struct {
		name    string
		command string
		status  int
		body    string
	}{
		{"valid command", "TARGET_ANIMAL:CAT", http.StatusOK, "TARGET_ANIMAL:CAT"},
		{"empty command", "", http.StatusBadRequest, "Missing command"},
		{"whitespace command", "   ", http.StatusBadRequest, "Missing command"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postCommand(httpMux, tt.command)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.status, w.Body.String())
			}
			if !strings.Contains(w.Body.String(), tt.body) {
				t.Errorf("body %q does not contain %q", w.Body.String(), tt.body)
			}
		})
	}
	if got := written(port); got != "PI_READY\nTARGET_ANIMAL:CAT\n" {
		t.Errorf("written = %q", got)
	}

	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/send-command-api", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d, want 405", w.Code)
	}
}

func TestAdminSendCommandWhileDisconnected(t *testing.T) {
	link := NewLink(LinkConfig{Factory: NewMockSerialPortFactory()})
	httpMux := http.NewServeMux()
	link.AttachAdminRoutes(httpMux)

	if w := postCommand(httpMux, "PI_PONG"); w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
}

func TestAdminSendCommandPage(t *testing.T) {
	link := NewLink(LinkConfig{Factory: NewMockSerialPortFactory()})
	httpMux := http.NewServeMux()
	link.AttachAdminRoutes(httpMux)

	w := httptest.NewRecorder()
	httpMux.ServeHTTP(w, localHostRequest(http.MethodGet, "/debug/send-command", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `EventSource("tail")`) {
		t.Errorf("page does not open the tail stream")
	}
}

func TestAdminTailStreamsLines(t *testing.T) {
	port := NewTestableSerialPort()
	h := startLink(t, NewMockSerialPortFactory(port))
	waitFor(t, "announce", func() bool { return written(port) == "PI_READY\n" })

	httpMux := http.NewServeMux()
	h.link.AttachAdminRoutes(httpMux)
	srv := httptest.NewServer(httpMux)
	defer srv.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(srv.URL + "/debug/tail")
	if err != nil {
		t.Fatalf("GET tail: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	if line, _ := r.ReadString('\n'); line != ": ping\n" {
		t.Fatalf("first line = %q", line)
	}

	port.AddReadData([]byte("MOTION_DETECTED\n"))
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		if strings.HasPrefix(line, "data: ") {
			if line != "data: MOTION_DETECTED\n" {
				t.Errorf("event = %q", line)
			}
			break
		}
	}
}
