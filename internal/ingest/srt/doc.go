// Package srt implements SRT (Secure Reliable Transport) ingest of DAB+
// sub-channel byte streams, including both listener-mode (Server) for
// accepting incoming publish connections and caller-mode (Caller) for
// pulling streams from remote SRT sources such as off-air receivers.
package srt
