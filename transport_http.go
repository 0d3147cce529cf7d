package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// HTTPTransport is a client-side transport plugin: one POST per call,
// resolved inline against the response body -- the "classical HTTP
// client-to-server" degenerate case spec.md §1 calls out, grounded on
// client.go's plain-HTTP dial path and config/transport.go's HTTP mode.
type HTTPTransport struct {
	URL        string
	HTTPClient *http.Client
}

// NewHTTPTransport builds a transport that POSTs every call to url.
func NewHTTPTransport(url string) *HTTPTransport {
	return &HTTPTransport{URL: url, HTTPClient: http.DefaultClient}
}

// Plugin returns the ClientPlugin a Client should AddPlugin.
func (t *HTTPTransport) Plugin() ClientPlugin {
	return ClientPlugin{Name: "http-transport", MakeRequest: t.makeRequest}
}

func (t *HTTPTransport) makeRequest(out *OutgoingRequest) error {
	httpClient := t.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	resp, err := httpClient.Post(t.URL, "application/json", bytes.NewReader(out.Body))
	if err != nil {
		return fmt.Errorf("http transport: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		// The degenerate notification round trip: no body to match.
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("http transport: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var probe struct {
			JSONRPC string `json:"jsonrpc"`
		}
		if json.Unmarshal(body, &probe) == nil && probe.JSONRPC != "" {
			// A non-2xx status carrying a well-formed envelope is still a
			// JSON-RPC error response (e.g. an HTTP framework surfacing
			// the JSON-RPC error code as a status too); let it through.
			out.ResponseBody = body
			return nil
		}
		return fmt.Errorf("http transport: unexpected status %d: %s", resp.StatusCode, string(body))
	}

	out.ResponseBody = body
	return nil
}
