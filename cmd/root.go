package cmd

import (
	"fmt"
	u "net/url"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/tanq16/rangefetch/internal/config"
	"github.com/tanq16/rangefetch/internal/utils"
)

var (
	configFile    string
	debug         bool
	logFile       string
	workers       int
	connections   int
	retries       int
	retryDelay    time.Duration
	timeout       time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	headers       []string
	bearerToken   string
	metricsAddr   string
	keepPartial   bool
)

var RangeFetchVersion = "dev"

// cfg is resolved once per invocation before any subcommand runs.
var cfg = config.Default()

var rootCmd = &cobra.Command{
	Use:               "rangefetch",
	Short:             "RangeFetch is a concurrent, resumable HTTP and S3 download manager",
	Version:           RangeFetchVersion,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, .env files, the config file, RANGEFETCH_*
// variables and finally explicitly set flags.
func loadConfig(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFiles(".env"); err != nil {
		return err
	}
	if configFile != "" {
		fileCfg, err := config.LoadFromFile(configFile)
		if err != nil {
			return err
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("debug") {
		cfg.Log.Debug = debug
	}
	if flags.Changed("log-file") {
		cfg.Log.File = logFile
	}
	if flags.Changed("workers") {
		cfg.Engine.MaxConcurrentDownloads = workers
	}
	if flags.Changed("connections") {
		cfg.Engine.ThreadCount = connections
	}
	if flags.Changed("retries") {
		cfg.Engine.RetryCount = retries
	}
	if flags.Changed("retry-delay") {
		cfg.Engine.RetryDelay = retryDelay
	}
	if flags.Changed("timeout") {
		cfg.Engine.ReadTimeout = timeout
	}
	if flags.Changed("keep-partial") {
		cfg.Engine.KeepPartialOnCancel = keepPartial
	}
	if flags.Changed("user-agent") {
		cfg.HTTP.UserAgent = userAgent
	}
	if flags.Changed("proxy") {
		cfg.HTTP.Proxy = proxyURL
	}
	if flags.Changed("proxy-username") {
		cfg.HTTP.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		cfg.HTTP.ProxyPassword = proxyPassword
	}
	if flags.Changed("bearer-token") {
		cfg.HTTP.BearerToken = bearerToken
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = metricsAddr
	}
	if len(headers) > 0 {
		if cfg.HTTP.Headers == nil {
			cfg.HTTP.Headers = make(map[string]string)
		}
		for k, v := range utils.ParseHeaderArgs(headers) {
			cfg.HTTP.Headers[k] = v
		}
	}

	if cfg.HTTP.UserAgent == "randomize" {
		cfg.HTTP.UserAgent = utils.GetRandomUserAgent()
	}
	// Check if proxy URL contains auth
	parsedProxy, err := u.Parse(cfg.HTTP.Proxy)
	if err == nil && parsedProxy.User != nil && cfg.HTTP.ProxyUsername == "" {
		cfg.HTTP.ProxyUsername = parsedProxy.User.Username()
		if password, set := parsedProxy.User.Password(); set {
			cfg.HTTP.ProxyPassword = password
		}
		parsedProxy.User = nil
		cfg.HTTP.Proxy = parsedProxy.String()
	}

	if err := cfg.Validate(); err != nil {
		return err
	}
	utils.InitLogger(cfg.Log.Debug, cfg.LogFile())
	return nil
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "Path to a YAML config file")
	pf.BoolVar(&debug, "debug", false, "Enable debug logging")
	pf.StringVar(&logFile, "log-file", "", "Also write JSON logs to this file (rotated)")
	pf.IntVarP(&workers, "workers", "w", 3, "Number of downloads running in parallel")
	pf.IntVarP(&connections, "connections", "c", 3, "Number of connections per download (above 5 enables high-thread-mode)")
	pf.IntVar(&retries, "retries", 3, "Retries after a failed attempt")
	pf.DurationVar(&retryDelay, "retry-delay", time.Second, "Delay between retries")
	pf.DurationVarP(&timeout, "timeout", "t", 30*time.Second, "Abort a connection that delivers no data for this long (eg. 5s, 10m)")
	pf.StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent (\"randomize\" picks a browser agent)")
	pf.StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., http://proxy.example.com:8080)")
	pf.StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	pf.StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	pf.StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	pf.StringVar(&bearerToken, "bearer-token", "", "Send an OAuth2 bearer token with every request")
	pf.StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (eg. localhost:9090)")
	pf.BoolVar(&keepPartial, "keep-partial", false, "Keep partial files of cancelled downloads")

	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newCleanCmd())
}
