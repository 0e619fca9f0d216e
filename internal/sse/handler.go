package sse

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
)

// Serve streams the events of topic to w until the request is done.
func Serve(w http.ResponseWriter, r *http.Request, hub *Hub, topic string, logger zerolog.Logger) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	msgCh := make(chan Event, 16)
	hub.Subscribe(msgCh, topic)
	defer hub.Unsubscribe(msgCh, topic)

	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-msgCh:
			if err := WriteEvent(w, ev); err != nil {
				logger.Debug().Err(err).Str("topic", topic).Msg("sse write failed")
				return
			}
			flusher.Flush()
		}
	}
}

// WriteEvent writes ev in text/event-stream framing.
func WriteEvent(w http.ResponseWriter, ev Event) error {
	if ev.Name != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", ev.Name); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "data: %s\n\n", ev.Data)
	return err
}
