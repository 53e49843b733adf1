package rfhttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/tanq16/rangefetch/internal/utils"
)

// Get issues a GET for link, ranged when rng is set. A 200 answer to a ranged
// request is returned with Partial=false so the caller can tell the server
// ignored the range.
func (d *HTTPDownloader) Get(ctx context.Context, link string, rng *utils.ByteRange) (*utils.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("error creating GET request: %w", err)
	}
	if rng != nil {
		req.Header.Set("Range", rng.Header())
	}
	req.Header.Set("Connection", "keep-alive")
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error executing GET request: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return &utils.Response{Body: resp.Body, ContentLength: resp.ContentLength}, nil
	case http.StatusPartialContent:
		start, err := contentRangeStart(resp.Header.Get("Content-Range"))
		if rng == nil {
			// unasked-for 206: usable as a plain body only when it starts at byte 0
			if err != nil || start != 0 {
				resp.Body.Close()
				return nil, fmt.Errorf("%w: unrequested partial response %q", utils.ErrBadContentRange, resp.Header.Get("Content-Range"))
			}
			return &utils.Response{Body: resp.Body, ContentLength: resp.ContentLength}, nil
		}
		if err != nil || start != rng.Start {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: %q for %s", utils.ErrBadContentRange, resp.Header.Get("Content-Range"), rng.Header())
		}
		return &utils.Response{Body: resp.Body, ContentLength: resp.ContentLength, Partial: true}, nil
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil, &utils.StatusError{Op: "GET", Code: resp.StatusCode}
}

// contentRangeStart parses the first byte position of "bytes start-end/size".
func contentRangeStart(header string) (int64, error) {
	if header == "" {
		return 0, fmt.Errorf("missing Content-Range header")
	}
	rangeSpec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes ")
	if !ok {
		return 0, fmt.Errorf("unsupported Content-Range unit")
	}
	startStr, _, ok := strings.Cut(rangeSpec, "-")
	if !ok {
		return 0, fmt.Errorf("malformed Content-Range")
	}
	return strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
}
