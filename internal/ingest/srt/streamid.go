package srt

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// parseStreamID splits an SRT stream ID of the form
// [/][live/]<key>[?bitrate=<kbps>] into the stream key and the
// sub-channel bitrate. defaultBitrate applies when no bitrate is given.
func parseStreamID(streamID string, defaultBitrate int) (string, int, error) {
	path, rawQuery, _ := strings.Cut(streamID, "?")

	key := strings.TrimPrefix(path, "/")
	key = strings.TrimPrefix(key, "live/")
	if key == "" {
		key = "default"
	}

	bitrate := defaultBitrate
	if rawQuery != "" {
		q, err := url.ParseQuery(rawQuery)
		if err != nil {
			return "", 0, fmt.Errorf("stream id %q: %w", streamID, err)
		}
		if v := q.Get("bitrate"); v != "" {
			bitrate, err = strconv.Atoi(v)
			if err != nil {
				return "", 0, fmt.Errorf("stream id %q: bitrate: %w", streamID, err)
			}
		}
	}
	return key, bitrate, nil
}
