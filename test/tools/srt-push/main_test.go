package main

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestStreamID(t *testing.T) {
	t.Parallel()
	if got := streamID("radio1", 96); got != "live/radio1?bitrate=96" {
		t.Errorf("streamID = %q", got)
	}
}

func TestChunks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		n    int
		want []int
	}{
		{"empty", 0, nil},
		{"single", 960, []int{960}},
		{"exact", 1316, []int{1316}},
		{"split", 2880, []int{1316, 1316, 248}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := chunks(make([]byte, tc.n), maxPayload)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d chunks, want %d", len(got), len(tc.want))
			}
			for i, c := range got {
				if len(c) != tc.want[i] {
					t.Errorf("chunk %d: %d bytes, want %d", i, len(c), tc.want[i])
				}
			}
		})
	}
}

func TestDueAt(t *testing.T) {
	t.Parallel()
	if got := dueAt(25); got != 3*time.Second {
		t.Errorf("dueAt(25) = %s, want 3s", got)
	}
}

type recordWriter struct {
	bytes.Buffer
	writes int
	failAt int
}

func (w *recordWriter) Write(b []byte) (int, error) {
	w.writes++
	if w.failAt > 0 && w.writes == w.failAt {
		return 0, errors.New("broken pipe")
	}
	return w.Buffer.Write(b)
}

func TestStreamLoopOnce(t *testing.T) {
	t.Parallel()

	data := make([]byte, 2*720)
	for i := range data {
		data[i] = byte(i)
	}
	w := &recordWriter{}
	if err := streamLoop(w, data, 720, "test", true); err != nil {
		t.Fatalf("streamLoop: %v", err)
	}
	if !bytes.Equal(w.Bytes(), data) {
		t.Error("sent bytes differ from the file")
	}
	if w.writes != 2 {
		t.Errorf("writes = %d, want 2", w.writes)
	}
}

func TestStreamLoopWriteError(t *testing.T) {
	t.Parallel()

	w := &recordWriter{failAt: 1}
	if err := streamLoop(w, make([]byte, 720), 720, "test", false); err == nil {
		t.Fatal("expected write error")
	}
}
