// Command sf2aac converts a file of DAB+ superframes into an ADTS (.aac)
// elementary stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
)

func main() {
	inFlag := flag.String("in", "", "superframe input file")
	outFlag := flag.String("out", "", "ADTS output file (default: input with .aac extension)")
	bitrateFlag := flag.Int("bitrate", 64, "sub-channel bitrate in kbit/s")
	noFirecode := flag.Bool("no-firecode", false, "accept superframes with a bad Firecode")
	keepCRC := flag.Bool("keep-crc", false, "keep the 2-byte check word at the end of each access unit")
	resync := flag.Int("resync", 3, "consecutive bad superframes before byte-wise resync")
	verifyFlag := flag.Bool("verify", false, "re-parse the output and print a summary")
	debug := flag.Bool("debug", false, "debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	in := *inFlag
	if in == "" && flag.NArg() > 0 {
		in = flag.Arg(0)
	}
	if in == "" {
		fmt.Fprintf(os.Stderr, "Usage: sf2aac [flags] -in superframes.bin [-out out.aac]\n")
		flag.PrintDefaults()
		os.Exit(2)
	}
	out := *outFlag
	if out == "" {
		out = outputName(in)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log, in, out, options{
		bitrate:         *bitrateFlag,
		verifyFirecode:  !*noFirecode,
		stripAUCRC:      !*keepCRC,
		resyncThreshold: *resync,
	}, *verifyFlag); err != nil {
		log.Error("conversion failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, log *slog.Logger, inPath, outPath string, opts options, check bool) error {
	in, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}

	res, err := convert(ctx, log, in, out, opts)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	log.Info("converted",
		"in", inPath,
		"out", outPath,
		"superframes", res.stats.SuperFrames,
		"rejected", res.stats.Rejected,
		"resyncs", res.stats.Resyncs,
		"skipped_bytes", res.stats.BytesSkipped,
		"adts_frames", res.frames,
		"bytes", res.bytes,
		"codec", res.info.Codec,
		"sample_rate", res.info.SampleRate,
		"channels", res.info.Channels,
	)

	if !check {
		return nil
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		return err
	}
	rep, err := verify(data)
	if err != nil {
		return fmt.Errorf("verify %s: %w", outPath, err)
	}
	fmt.Printf("%s: %d ADTS frames, %d payload bytes\n", outPath, rep.frames, rep.payload)
	for rate, n := range rep.sampleRates {
		fmt.Printf("  %d Hz: %d frames\n", rate, n)
	}
	for ch, n := range rep.channels {
		fmt.Printf("  %d channel(s): %d frames\n", ch, n)
	}
	if rep.frames != res.frames {
		return fmt.Errorf("verify %s: parsed %d frames, wrote %d", outPath, rep.frames, res.frames)
	}
	return nil
}

func outputName(in string) string {
	return strings.TrimSuffix(in, filepath.Ext(in)) + ".aac"
}
