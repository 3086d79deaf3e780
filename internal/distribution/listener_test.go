package distribution

import (
	"bytes"
	"context"
	"net/http/httptest"
	"testing"

	"github.com/zsiec/dabplus/media"
)

func TestListenerWritesQueuedFramesAfterStreamEnds(t *testing.T) {
	t.Parallel()

	l := newHTTPListener("radio1", httptest.NewRequest("GET", "/streams/radio1.aac", nil), nil)
	var want []byte
	for i := range 10 {
		frame := []byte{0xFF, 0xF1, 0x4C, 0x80, 0x01, 0x3F, 0xFC, byte(i)}
		want = append(want, frame...)
		l.SendAudio(&media.AudioFrame{PTS: int64(i) * 1800, Data: frame})
	}

	relay := NewRelay()
	relay.Close()

	rec := httptest.NewRecorder()
	if err := l.serve(context.Background(), relay.Done(), rec); err != nil {
		t.Fatalf("serve: %v", err)
	}

	if !bytes.Equal(rec.Body.Bytes(), want) {
		t.Errorf("wrote %d bytes, want %d", rec.Body.Len(), len(want))
	}
	st := l.Stats()
	if st.FramesSent != 10 || st.BytesSent != int64(len(want)) || st.LastPTS != 9*1800 {
		t.Errorf("stats = %+v", st)
	}
	if !rec.Flushed {
		t.Error("response not flushed")
	}
}

func TestListenerStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	l := newHTTPListener("radio1", httptest.NewRequest("GET", "/streams/radio1.aac", nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := httptest.NewRecorder()
	if err := l.serve(ctx, make(chan struct{}), rec); err != nil {
		t.Fatalf("serve: %v", err)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("wrote %d bytes with no frames queued", rec.Body.Len())
	}
}
