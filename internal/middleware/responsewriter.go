package middleware

import "net/http"

// ResponseCapture records the status code and body size of a response
// as it streams out, since http.ResponseWriter cannot be read back.
// Logging reads both fields once the handler returns.
type ResponseCapture struct {
	http.ResponseWriter
	StatusCode int
	Written    int64
}

// NewResponseCapture wraps w. A handler that writes a body without
// calling WriteHeader implicitly answers 200, so that is the
// starting status.
func NewResponseCapture(w http.ResponseWriter) *ResponseCapture {
	return &ResponseCapture{ResponseWriter: w, StatusCode: http.StatusOK}
}

func (rc *ResponseCapture) WriteHeader(code int) {
	rc.StatusCode = code
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *ResponseCapture) Write(b []byte) (int, error) {
	n, err := rc.ResponseWriter.Write(b)
	rc.Written += int64(n)
	return n, err
}
