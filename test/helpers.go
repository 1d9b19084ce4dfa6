// Package test provides small helpers shared by the e2e test suite.
package test

import (
	"net/http"
	"time"
)

// WaitForHTTPStatus polls url until it returns expectedStatus or 30s elapse.
// doneChan receives once on success, timeoutChan receives the last error (or
// nil) once the deadline passes.
func WaitForHTTPStatus(url string, expectedStatus int) (doneChan chan struct{}, timeoutChan chan error) {
	doneChan = make(chan struct{}, 1)
	timeoutChan = make(chan error, 1)

	go func() {
		deadline := time.Now().Add(30 * time.Second)
		var lastErr error
		for time.Now().Before(deadline) {
			resp, err := http.Get(url)
			if err != nil {
				lastErr = err
				time.Sleep(200 * time.Millisecond)
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == expectedStatus {
				doneChan <- struct{}{}
				return
			}
			lastErr = nil
			time.Sleep(200 * time.Millisecond)
		}
		timeoutChan <- lastErr
	}()

	return doneChan, timeoutChan
}
