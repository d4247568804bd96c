// Package storage archives canonical fingerprint payloads on IPFS (via a Kubo
// HTTP API client) before registration, so a registered record can reference
// the full payload by URI instead of carrying it inline.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/ipfs/kubo/client/rpc"
	"go.uber.org/zap"
)

// IpfsPrefix is the URI scheme prefix for archived content.
const IpfsPrefix = "ipfs://"

// Archiver is the slice of the storage client the orchestrator uses.
type Archiver interface {
	UploadJSON(ctx context.Context, data any) (string, error)
}

// Client wraps a Kubo HTTP API client.
type Client struct {
	api *rpc.HttpApi
}

// NewClient connects to the IPFS node at the given HTTP API URL. The timeout
// bounds each archival request; zero keeps the client unbounded.
func NewClient(ipfsURL string, timeout time.Duration) (*Client, error) {
	httpClient := http.Client{
		Timeout: timeout,
	}
	api, err := rpc.NewURLApiWithClient(ipfsURL, &httpClient)
	if err != nil {
		return nil, fmt.Errorf("connect to IPFS at %s: %w", ipfsURL, err)
	}
	return &Client{api: api}, nil
}

// UploadJSON serializes data to JSON and adds it to IPFS.
// Returns the IPFS URI (ipfs://<hash>) on success.
func (c *Client) UploadJSON(ctx context.Context, data any) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return c.upload(ctx, jsonData)
}

// upload adds raw bytes via the IPFS 'add' command.
func (c *Client) upload(ctx context.Context, data []byte) (string, error) {
	if c == nil || c.api == nil {
		return "", fmt.Errorf("ipfs client not configured")
	}

	req := c.api.Request("add")
	req.Body(bytes.NewReader(data))

	resp, err := req.Send(ctx)
	if err != nil {
		zap.L().Error("error uploading to ipfs", zap.Error(err))
		return "", err
	}
	defer func(resp *rpc.Response) {
		if err := resp.Close(); err != nil {
			zap.L().Error("error closing ipfs response", zap.Error(err))
		}
	}(resp)

	if resp.Error != nil {
		zap.L().Error("ipfs add command returned error", zap.Error(resp.Error))
		return "", resp.Error
	}

	body, err := io.ReadAll(resp.Output)
	if err != nil {
		return "", err
	}

	var addResp struct {
		Hash string `json:"Hash"`
	}
	if err := json.Unmarshal(body, &addResp); err != nil {
		return "", fmt.Errorf("parse ipfs add response: %w", err)
	}
	if addResp.Hash == "" {
		return "", fmt.Errorf("ipfs add response missing hash")
	}

	zap.L().Debug("archived payload on ipfs", zap.String("hash", addResp.Hash))
	return IpfsPrefix + addResp.Hash, nil
}

// Fetch retrieves archived content by hash or ipfs:// URI via `ipfs cat` and
// verifies, best effort, that the content matches the requested CID.
func (c *Client) Fetch(ctx context.Context, hash string) ([]byte, error) {
	hash = formatHash(hash)

	cID, err := cid.Parse(hash)
	if err != nil {
		return nil, fmt.Errorf("invalid ipfs hash %q: %w", hash, err)
	}

	if c == nil || c.api == nil {
		return nil, fmt.Errorf("ipfs client not configured")
	}

	req := c.api.Request("cat", cID.String())
	resp, err := req.Send(ctx)
	if err != nil {
		zap.L().Error("error executing the cat command in ipfs", zap.String("hash", hash), zap.Error(err))
		return nil, err
	}
	defer func(resp *rpc.Response) {
		if err := resp.Close(); err != nil {
			zap.L().Error("error closing response in ipfs", zap.Error(err))
		}
	}(resp)

	if resp.Error != nil {
		return nil, resp.Error
	}

	content, err := io.ReadAll(resp.Output)
	if err != nil {
		return nil, err
	}

	_, check, err := cid.CidFromBytes(append(cID.Bytes(), content...))
	if err == nil && !check.Equals(cID) {
		zap.L().Error("IPFS hash verification failed",
			zap.String("expectedHash", hash),
			zap.String("hashFromContent", check.String()))
	}

	return content, nil
}

// formatHash strips the ipfs:// prefix when present.
func formatHash(hash string) string {
	return strings.TrimPrefix(hash, IpfsPrefix)
}
