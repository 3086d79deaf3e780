// Command gen-superframes writes a synthetic DAB+ superframe stream for
// exercising sf2aac, srt-push and the server. Access units carry
// placeholder bytes, not decodable AAC, but every header, Firecode and AU
// check word is valid.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/zsiec/dabplus/superframe"
)

type genConfig struct {
	params  superframe.AudioParams
	bitrate int
	count   int
	// corruptEvery flips a Firecode bit in every n-th superframe; 0 disables.
	corruptEvery int
}

func main() {
	rate := flag.Int("rate", 48, "DAC rate class in kHz (32 or 48)")
	sbr := flag.Bool("sbr", false, "signal SBR (HE-AAC)")
	mono := flag.Bool("mono", false, "mono instead of stereo")
	ps := flag.Bool("ps", false, "signal parametric stereo (HE-AAC v2)")
	surround := flag.Uint("surround", 0, "MPEG Surround config (0-7)")
	bitrate := flag.Int("bitrate", 64, "sub-channel bitrate in kbit/s")
	count := flag.Int("count", 250, "number of superframes (250 = 30 s)")
	corrupt := flag.Int("corrupt-every", 0, "corrupt the Firecode of every n-th superframe")
	out := flag.String("out", "-", "output file, - for stdout")
	flag.Parse()

	cfg := genConfig{
		params: superframe.AudioParams{
			SBR:      *sbr,
			PS:       *ps,
			Surround: superframe.Surround(*surround),
		},
		bitrate:      *bitrate,
		count:        *count,
		corruptEvery: *corrupt,
	}
	switch *rate {
	case 32:
		cfg.params.DacRate = superframe.DacRate32kHz
	case 48:
		cfg.params.DacRate = superframe.DacRate48kHz
	default:
		fmt.Fprintf(os.Stderr, "unsupported rate class %d kHz\n", *rate)
		os.Exit(2)
	}
	if !*mono {
		cfg.params.ChannelMode = superframe.Stereo
	}

	var w io.Writer = os.Stdout
	if *out != "-" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	bw := bufio.NewWriter(w)
	if err := generate(bw, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := bw.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *out != "-" {
		fmt.Fprintf(os.Stderr, "wrote %d superframes to %s\n", cfg.count, *out)
	}
}

// generate writes cfg.count superframes to w. Access unit sizes vary
// from frame to frame around an even split of the payload.
func generate(w io.Writer, cfg genConfig) error {
	size, err := superframe.SizeForBitrate(cfg.bitrate)
	if err != nil {
		return err
	}
	n, err := superframe.AUCount(cfg.params)
	if err != nil {
		return err
	}
	capacity, err := superframe.Capacity(cfg.params, size)
	if err != nil {
		return err
	}
	if capacity < n*8 {
		return fmt.Errorf("%d kbit/s is too small for %d access units", cfg.bitrate, n)
	}

	aus := make([][]byte, n)
	for f := range cfg.count {
		remaining := capacity
		for i := range aus {
			l := remaining / (n - i)
			if i < n-1 {
				// Shift a few bytes between neighbours so boundaries move.
				l -= (f + i) % 4
			}
			remaining -= l
			au := make([]byte, l-2)
			for j := range au {
				au[j] = byte(f + i*17 + j)
			}
			aus[i] = superframe.AppendAUCheck(au)
		}

		frame, err := superframe.Encode(cfg.params, aus, size)
		if err != nil {
			return fmt.Errorf("superframe %d: %w", f, err)
		}
		if cfg.corruptEvery > 0 && (f+1)%cfg.corruptEvery == 0 {
			frame[0] ^= 0x01
		}
		if _, err := w.Write(frame); err != nil {
			return err
		}
	}
	return nil
}
