package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// DoJSON sends in as the JSON body (when non-nil) through Request and decodes a
// 2xx response into out (when non-nil). Non-2xx responses become *StatusError.
func (c *Client) DoJSON(ctx context.Context, method, endpoint string, query url.Values, in, out any) error {
	opts := RequestOptions{Method: method, Query: query}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("[apiclient DoJSON] encode %s: %w", endpoint, err)
		}
		opts.Body = body
	}

	resp, err := c.Request(ctx, endpoint, opts)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return NewStatusError(endpoint, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("[apiclient DoJSON] decode %s: %w", endpoint, err)
	}
	return nil
}
