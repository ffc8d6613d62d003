package httpserver

import (
	"net/http"
	"time"
)

// New builds the pipeline API server. Only header-read and idle timeouts
// are set: a run request holds its connection while issuance completes,
// which can take minutes under DNS validation, so a write timeout would
// cut off exactly the responses the scheduler waits for.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
