package rfhttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tanq16/rangefetch/internal/utils"
)

// HTTPDownloader implements utils.Transport over HTTP(S).
type HTTPDownloader struct {
	client *utils.HTTPClient
}

func New(cfg utils.HTTPClientConfig) *HTTPDownloader {
	return &HTTPDownloader{client: utils.NewHTTPClient(cfg)}
}

func validateURL(link string) error {
	parsedURL, err := url.Parse(link)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrInvalidResourceURL, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%w: %s", utils.ErrUnsupportedScheme, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%w: missing host", utils.ErrInvalidResourceURL)
	}
	return nil
}

// Head probes link for its size and range support.
func (d *HTTPDownloader) Head(ctx context.Context, link string) (*utils.ResourceInfo, error) {
	log := utils.GetLogger("http")
	if err := validateURL(link); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, link, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error checking URL: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &utils.StatusError{Op: "HEAD", Code: resp.StatusCode}
	}

	info := &utils.ResourceInfo{
		SupportsRange: strings.EqualFold(strings.TrimSpace(resp.Header.Get("Accept-Ranges")), "bytes"),
		FileName:      utils.FileNameFromDisposition(resp.Header.Get("Content-Disposition")),
	}
	size, err := parseContentLength(resp.Header.Get("Content-Length"))
	if err != nil {
		return nil, err
	}
	info.Size = size
	log.Debug().Str("op", "http/probe").Str("url", link).Int64("size", info.Size).Bool("ranges", info.SupportsRange).Msg("Probe finished")
	return info, nil
}

// parseContentLength treats an absent or non-positive length as unknown (0).
func parseContentLength(header string) (int64, error) {
	if header == "" {
		return 0, nil
	}
	size, err := strconv.ParseInt(strings.TrimSpace(header), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", utils.ErrBadContentLength, header)
	}
	return max(size, 0), nil
}
