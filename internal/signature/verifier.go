// Package signature calls the external signature-verification RPC service
// that proves a claimed channel identity produced a signed payload.
package signature

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a verification call when the config does not set
// one. Verification sits on the synchronous critical path of a privileged
// action, so the bound is short and there are no retries.
const DefaultTimeout = 10 * time.Second

// Config configures the verification client.
type Config struct {
	// URL is the RPC endpoint, e.g. http://localhost:5279
	URL        string
	HTTPClient *http.Client
	Timeout    time.Duration
	Logger     *slog.Logger
}

// Client performs single-attempt signature verification calls. Every
// failure mode — transport error, empty response, malformed response,
// explicit remote error, explicit invalid result — collapses to false for
// the caller and is distinguishable only in the log trail.
type Client struct {
	url     string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient validates the config and returns a verification client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("verifier URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{url: strings.TrimSpace(cfg.URL), client: httpClient, timeout: timeout, logger: logger}, nil
}

type rpcRequest struct {
	Method string    `json:"method"`
	Params rpcParams `json:"params"`
}

type rpcParams struct {
	ChannelID string `json:"channel_id"`
	Signature string `json:"signature"`
	SigningTS string `json:"signing_ts"`
	DataHex   string `json:"data_hex"`
}

type rpcResponse struct {
	Result *rpcResult `json:"result"`
	Error  *rpcError  `json:"error"`
}

type rpcResult struct {
	IsValid bool `json:"is_valid"`
}

type rpcError struct {
	Message string `json:"message"`
}

// Verify sends one verify.Signature call and returns true only when the
// response is well-formed and carries an explicit is_valid=true result.
// A timed-out call resolves to false.
func (c *Client) Verify(ctx context.Context, channelID, dataHex, signature, signingTS string) bool {
	payload := rpcRequest{
		Method: "verify.Signature",
		Params: rpcParams{
			ChannelID: channelID,
			Signature: signature,
			SigningTS: signingTS,
			DataHex:   dataHex,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("signature verification request encode failed", "channel_id", channelID, "error", err)
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		c.logger.Error("signature verification request build failed", "channel_id", channelID, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Error("signature verification transport error", "channel_id", channelID, "error", err)
		return false
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.logger.Error("signature verification transport error", "channel_id", channelID, "error", err)
		return false
	}
	if len(bytes.TrimSpace(data)) == 0 {
		c.logger.Error("signature verification empty response", "channel_id", channelID, "status", resp.Status)
		return false
	}

	var decoded rpcResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		c.logger.Error("signature verification malformed response", "channel_id", channelID, "error", err)
		return false
	}
	if decoded.Error != nil {
		c.logger.Error("signature verification remote error", "channel_id", channelID, "message", decoded.Error.Message)
		return false
	}
	if decoded.Result == nil {
		c.logger.Error("signature verification malformed response", "channel_id", channelID, "detail", "missing result and error")
		return false
	}
	if !decoded.Result.IsValid {
		c.logger.Warn("signature rejected", "channel_id", channelID, "signing_ts", signingTS)
		return false
	}
	return true
}
