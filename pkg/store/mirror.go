package store

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/types"
)

// Mirror pushes freshly resolved records to an external webhook so a
// secondary deployment can warm its own store. Publishing is fire and
// forget: a full queue drops the record rather than stalling resolution.
type Mirror struct {
	webhookURL string
	client     *http.Client
	log        *logging.Logger

	queue chan types.VideoRecord
	done  chan struct{}
	once  sync.Once
}

// NewMirror starts the mirror worker. An empty webhookURL yields a disabled
// mirror whose Publish is a no-op.
func NewMirror(webhookURL string, log *logging.Logger) *Mirror {
	m := &Mirror{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 15 * time.Second},
		log:        log.WithComponent("mirror"),
		queue:      make(chan types.VideoRecord, 100),
		done:       make(chan struct{}),
	}
	if webhookURL != "" {
		go m.run()
	}
	return m
}

// Publish enqueues a record for delivery. Never blocks the caller.
func (m *Mirror) Publish(rec types.VideoRecord) {
	if m.webhookURL == "" {
		return
	}
	select {
	case m.queue <- rec:
	default:
		m.log.Warn("mirror queue full, dropping record", "video_id", rec.VideoID)
	}
}

// Close stops the worker after the queue drains.
func (m *Mirror) Close() {
	m.once.Do(func() { close(m.queue) })
	if m.webhookURL != "" {
		<-m.done
	}
}

func (m *Mirror) run() {
	defer close(m.done)
	for rec := range m.queue {
		m.deliver(rec)
	}
}

func (m *Mirror) deliver(rec types.VideoRecord) {
	body, err := json.Marshal(rec)
	if err != nil {
		m.log.WithError(err).Error("mirror marshal failed", "video_id", rec.VideoID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.webhookURL, bytes.NewReader(body))
	if err != nil {
		m.log.WithError(err).Error("mirror request build failed")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		m.log.WithError(err).Warn("mirror delivery failed", "video_id", rec.VideoID)
		return
	}
	resp.Body.Close()

	if resp.StatusCode >= 300 {
		m.log.Warn("mirror rejected record", "video_id", rec.VideoID, "status", resp.StatusCode)
		return
	}
	m.log.Debug("mirrored record", "video_id", rec.VideoID)
}
