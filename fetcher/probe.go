package fetcher

import (
	"context"
	"net/http"
	"net/url"
)

// Existence is the probe verdict for a fetched resource.
type Existence int

const (
	Exists Existence = iota
	NotFound
)

func (e Existence) String() string {
	if e == NotFound {
		return "not_found"
	}
	return "exists"
}

// Probe classifies a response fetched with redirects disabled. The catalogue
// redirects instead of answering 404 for unknown items.
func Probe(resp *Response) Existence {
	if resp == nil {
		return NotFound
	}
	if resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode < http.StatusBadRequest {
		return NotFound
	}
	return Exists
}

// FetchExisting fetches rawURL without following redirects and turns a
// redirect into ErrNotFound.
func (c *Client) FetchExisting(ctx context.Context, rawURL string, query url.Values) (*Response, error) {
	resp, err := c.Fetch(ctx, rawURL, Options{Query: query})
	if err != nil {
		return nil, err
	}
	if Probe(resp) == NotFound {
		target := rawURL
		if resp.URL != nil {
			target = resp.URL.String()
		}
		return nil, ErrNotFound{
			URL:      target,
			Status:   resp.StatusCode,
			Location: resp.Header.Get("Location"),
		}
	}
	return resp, nil
}
