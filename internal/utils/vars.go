package utils

import "time"

const (
	ToolUserAgent = "RangeFetch-CLI"
	TempDirName   = ".rangefetch-temp"
	PartSuffix    = ".part"
	EnvPrefix     = "RANGEFETCH_"

	DefaultBufferSize = 8 * 1024
	DefaultChunkSize  = 1024 * 1024
	// buffers double above this size
	LargeFileThreshold = 1024 * 1024
)

func DefaultDownloadConfig() DownloadConfig {
	return DownloadConfig{
		MaxConcurrentDownloads: 3,
		ConnectTimeout:         30 * time.Second,
		ReadTimeout:            30 * time.Second,
		WriteTimeout:           30 * time.Second,
		RetryCount:             3,
		RetryDelay:             time.Second,
		ThreadCount:            3,
		MinChunkSize:           DefaultChunkSize,
		BufferSize:             DefaultBufferSize,
		ProgressUpdateInterval: 500 * time.Millisecond,
		ProgressDelta:          1.0,
	}
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.3 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:136.0) Gecko/20100101 Firefox/136.0",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36 Edg/134.0.0.0",
	"curl/8.12.1",
	"Wget/1.25.0",
}
