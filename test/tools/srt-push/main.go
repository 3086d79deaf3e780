// Command srt-push publishes a superframe file to a dabplus server over SRT,
// looping it in real time (one superframe per 120 ms).
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	srt "github.com/zsiec/srtgo"

	"github.com/zsiec/dabplus/superframe"
)

// maxPayload is the largest SRT live-mode message we send.
const maxPayload = 1316

// superFrameDuration is the audio time carried by one superframe.
const superFrameDuration = 120 * time.Millisecond

func main() {
	fileFlag := flag.String("file", "", "superframe file to push")
	keyFlag := flag.String("key", "", "stream key (default: file name without extension)")
	addrFlag := flag.String("addr", "127.0.0.1:6000", "SRT server address")
	bitrateFlag := flag.Int("bitrate", 64, "sub-channel bitrate in kbit/s")
	onceFlag := flag.Bool("once", false, "send the file once instead of looping")
	flag.Parse()

	filePath := *fileFlag
	if filePath == "" && flag.NArg() > 0 {
		filePath = flag.Arg(0)
	}
	if filePath == "" {
		fmt.Fprintf(os.Stderr, "Usage: srt-push [-addr host:port] [-key name] [-bitrate kbps] -file superframes.bin\n")
		os.Exit(2)
	}

	key := *keyFlag
	if key == "" {
		base := filepath.Base(filePath)
		key = strings.TrimSuffix(base, filepath.Ext(base))
	}

	frameSize, err := superframe.SizeForBitrate(*bitrateFlag)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read file: %v\n", err)
		os.Exit(1)
	}
	if len(data)%frameSize != 0 {
		fmt.Fprintf(os.Stderr, "Warning: file size %d is not a multiple of %d, trailing bytes dropped\n", len(data), frameSize)
		data = data[:len(data)-len(data)%frameSize]
	}
	if len(data) == 0 {
		fmt.Fprintf(os.Stderr, "No complete superframes in %s\n", filePath)
		os.Exit(1)
	}

	push(*addrFlag, streamID(key, *bitrateFlag), data, frameSize, *onceFlag)
}

func streamID(key string, bitrate int) string {
	return fmt.Sprintf("live/%s?bitrate=%d", key, bitrate)
}

func push(addr string, id string, data []byte, frameSize int, once bool) {
	fmt.Printf("[%s] %d superframes of %d bytes (%.1fs)\n", id, len(data)/frameSize, frameSize,
		(time.Duration(len(data)/frameSize) * superFrameDuration).Seconds())

	for {
		fmt.Printf("[%s] Connecting to SRT %s...\n", id, addr)

		cfg := srt.DefaultConfig()
		cfg.StreamID = id

		conn, err := srt.Dial(addr, cfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[%s] SRT connect failed: %v, retrying...\n", id, err)
			time.Sleep(time.Second)
			continue
		}

		fmt.Printf("[%s] Connected\n", id)
		writeErr := streamLoop(conn, data, frameSize, id, once)
		conn.Close()

		if writeErr == nil {
			return
		}
		fmt.Fprintf(os.Stderr, "[%s] Connection lost: %v, reconnecting...\n", id, writeErr)
		time.Sleep(time.Second)
	}
}

func streamLoop(conn io.Writer, data []byte, frameSize int, id string, once bool) error {
	start := time.Now()
	var sent int
	lastLog := time.Now()
	const logInterval = 10 * time.Second

	for loop := 1; ; loop++ {
		for off := 0; off < len(data); off += frameSize {
			for _, chunk := range chunks(data[off:off+frameSize], maxPayload) {
				if _, err := conn.Write(chunk); err != nil {
					return err
				}
			}
			sent++

			// Pace against the global clock so timing stays continuous
			// across loop boundaries.
			if d := time.Until(start.Add(dueAt(sent))); d > 0 {
				time.Sleep(d)
			}

			if time.Since(lastLog) >= logInterval {
				fmt.Printf("[%s] loop=%d superframes=%d elapsed=%s\n",
					id, loop, sent, time.Since(start).Truncate(time.Second))
				lastLog = time.Now()
			}
		}
		if once {
			return nil
		}
	}
}

// dueAt returns when, relative to the start of the push, the n-th
// superframe has been played out.
func dueAt(n int) time.Duration {
	return time.Duration(n) * superFrameDuration
}

// chunks splits b into slices of at most size bytes.
func chunks(b []byte, size int) [][]byte {
	var out [][]byte
	for len(b) > size {
		out = append(out, b[:size])
		b = b[size:]
	}
	if len(b) > 0 {
		out = append(out, b)
	}
	return out
}
