package store

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"embed-resolver-go/pkg/logging"
	"embed-resolver-go/pkg/types"
)

func TestMirror_PublishDelivers(t *testing.T) {
	received := make(chan types.VideoRecord, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rec types.VideoRecord
		if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
			t.Errorf("decode webhook body: %v", err)
		}
		received <- rec
	}))
	t.Cleanup(srv.Close)

	m := NewMirror(srv.URL, logging.New("error", false, io.Discard))
	m.Publish(types.VideoRecord{VideoID: "123", URL: "https://cdn.example/v.mp4"})
	m.Close()

	select {
	case rec := <-received:
		if rec.VideoID != "123" {
			t.Errorf("VideoID = %q", rec.VideoID)
		}
	default:
		t.Fatal("webhook never received the record")
	}
}

func TestMirror_DisabledIsNoop(t *testing.T) {
	m := NewMirror("", logging.New("error", false, io.Discard))
	m.Publish(types.VideoRecord{VideoID: "123"})
	m.Close()
}
