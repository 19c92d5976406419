package router

import (
	"bytes"
	"io"
	"net/http"
	"unicode/utf8"

	"github.com/shandysiswandi/gotp/internal/pkg/instrument"
)

const maxLoggedBodyBytes = 32 * 1024

// statusRecorder keeps the status, size, the first maxLoggedBodyBytes of the
// body and the handler error for the observability middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
	body   bytes.Buffer
	capped bool
	err    error
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	if room := maxLoggedBodyBytes - w.body.Len(); room < len(p) {
		w.body.Write(p[:max(room, 0)])
		w.capped = true
	} else {
		w.body.Write(p)
	}

	n, err := w.ResponseWriter.Write(p)
	w.bytes += n
	return n, err
}

func (w *statusRecorder) SetError(err error) { w.err = err }

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecorder) code() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

// peekBody reads up to maxLoggedBodyBytes and puts them back in front of
// the remaining body so the handler still sees the whole request.
func peekBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	//nolint:errcheck // logging only
	head, _ := io.ReadAll(io.LimitReader(r.Body, maxLoggedBodyBytes))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), r.Body), r.Body}
	return head
}

func loggableBody(m *instrument.Masker, body []byte, capped bool) any {
	if len(body) == 0 {
		return nil
	}

	var out any
	if doc, ok := m.JSON(body); ok && !capped {
		out = doc
	} else if utf8.Valid(body) {
		out = string(body)
	} else {
		out = "<binary body omitted>"
	}

	if capped {
		return map[string]any{"body": out, "truncated": true}
	}
	return out
}

func loggableHeaders(m *instrument.Masker, h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		if m.Secret(k) {
			out[k] = "***"
			continue
		}
		out[k] = h.Get(k)
	}
	return out
}
