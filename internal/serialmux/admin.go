package serialmux

import (
	"errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"

	"tailscale.com/tsweb"
)

var sendCommandTemplate = template.Must(template.New("send-command").Parse(`<!doctype html>
<html>
<head><title>Serial console</title></head>
<body>
<h1>Serial console</h1>
<form id="send">
  <input name="command" placeholder="TARGET_ANIMAL:CAT" autofocus>
  <button type="submit">Send</button>
</form>
<p>Examples: {{range .}}<code>{{.}}</code> {{end}}</p>
<pre id="tail"></pre>
<script>
const tail = document.getElementById("tail");
const es = new EventSource("tail");
es.onmessage = (e) => { tail.textContent += e.data + "\n"; };
document.getElementById("send").onsubmit = async (e) => {
  e.preventDefault();
  const body = new URLSearchParams(new FormData(e.target));
  const res = await fetch("send-command-api", {method: "POST", body});
  tail.textContent += "> " + (await res.text()) + "\n";
};
</script>
</body>
</html>
`))

// consoleExamples are lines the microcontroller would normally send, useful
// for injecting into a dev-mode console or replying to the board by hand.
var consoleExamples = []string{"PI_READY", "PI_PONG", "NO_ANIMAL_DETECTED_BY_AI"}

// AttachAdminRoutes registers the serial console under /debug on mux.
func (l *Link) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Basic command / live tail monitor interface using the below two API endpoints.
	debug.HandleFunc("send-command", "send a command to the serial port", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := sendCommandTemplate.Execute(w, consoleExamples); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
		}
	})

	// API endpoint to write command to the serial port
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := l.SendCommand(command); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, ErrNotConnected) {
				status = http.StatusServiceUnavailable
			}
			http.Error(w, "Failed to write command: "+err.Error(), status)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	})

	// API endpoint to issue Server-Side Events (SSE) in response to lines coming from the serial port.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := l.Subscribe()
		defer l.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
