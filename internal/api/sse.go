package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type sseWriter struct {
	w          http.ResponseWriter
	controller *http.ResponseController
}

// newSSEWriter sends the event-stream headers. The server write timeout is
// lifted for the rest of the response since answers stream for a while.
func newSSEWriter(w http.ResponseWriter) *sseWriter {
	header := w.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	controller := http.NewResponseController(w)
	_ = controller.SetWriteDeadline(time.Time{})
	_ = controller.Flush()
	return &sseWriter{w: w, controller: controller}
}

func (s *sseWriter) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		return err
	}
	if err := s.controller.Flush(); err != nil {
		return fmt.Errorf("flush %s event: %w", event, err)
	}
	return nil
}
