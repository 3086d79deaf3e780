package distribution

// ListenerStats captures per-listener delivery metrics, used for
// diagnostics and the stream API.
type ListenerStats struct {
	ID          string `json:"id"`
	Remote      string `json:"remote,omitempty"`
	Protocol    string `json:"protocol,omitempty"`
	FramesSent  int64  `json:"framesSent"`
	FramesDrop  int64  `json:"framesDropped"`
	BytesSent   int64  `json:"bytesSent"`
	LastPTS     int64  `json:"lastPts,omitempty"`
	ConnectedAt int64  `json:"connectedAt"`
}

// PipelineStats summarizes superframe decoding for one stream.
type PipelineStats struct {
	Protocol      string `json:"protocol,omitempty"`
	SuperFrameLen int    `json:"superFrameBytes"`
	SuperFrames   int64  `json:"superFrames"`
	Rejected      int64  `json:"rejected"`
	AccessUnits   int64  `json:"accessUnits"`
	Resyncs       int64  `json:"resyncs"`
	BytesSkipped  int64  `json:"bytesSkipped"`
	Synced        bool   `json:"synced"`
	LastPTS       int64  `json:"lastPts"`
	UptimeMs      int64  `json:"uptimeMs"`
}

// StatsProvider is implemented by the pipeline to supply decoding
// statistics for the REST API.
type StatsProvider interface {
	Stats() PipelineStats
}

// StreamInfo is the JSON summary of a live stream returned by
// /api/streams.
type StreamInfo struct {
	Key            string          `json:"key"`
	Listeners      int             `json:"listeners"`
	Codec          string          `json:"codec,omitempty"`
	SampleRate     int             `json:"sampleRate,omitempty"`
	CoreSampleRate int             `json:"coreSampleRate,omitempty"`
	Channels       int             `json:"channels,omitempty"`
	SBR            bool            `json:"sbr"`
	PS             bool            `json:"ps"`
	Surround       string          `json:"surround,omitempty"`
	ASC            string          `json:"audioSpecificConfig,omitempty"` // hex
	UptimeMs       int64           `json:"uptimeMs"`
	Pipeline       *PipelineStats  `json:"pipeline,omitempty"`
	ListenerStats  []ListenerStats `json:"listenerStats,omitempty"`
}
