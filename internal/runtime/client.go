package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"modsync/pkg/logging"
)

// HTTPClient talks JSON-RPC 2.0 to a tenant runtime's control endpoint.
//
// One HTTPClient serves all tenants of a runtime host; the tenant identifier
// is carried in every request's params. The zero value is not usable, use
// NewHTTPClient.
type HTTPClient struct {
	endpoint string
	login    string
	apiKey   string
	client   *http.Client

	// nextID generates JSON-RPC request ids.
	nextID atomic.Int64
}

// HTTPClientConfig configures an HTTPClient.
type HTTPClientConfig struct {
	// Endpoint is the base URL of the runtime control API, e.g.
	// "http://runtime.internal:8069".
	Endpoint string

	// Login and APIKey authenticate control calls.
	Login  string
	APIKey string

	// Timeout bounds a single control call. Install calls additionally
	// honor the per-call context deadline set by the engine.
	Timeout time.Duration
}

// NewHTTPClient creates a runtime client for the given control endpoint.
func NewHTTPClient(cfg HTTPClientConfig) *HTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &HTTPClient{
		endpoint: cfg.Endpoint,
		login:    cfg.Login,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// rpcRequest is the JSON-RPC 2.0 request envelope.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      int64       `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
}

// rpcResponse is the JSON-RPC 2.0 response envelope.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// moduleParams carries the common params of every module control call.
type moduleParams struct {
	Tenant string `json:"tenant"`
	Login  string `json:"login,omitempty"`
	APIKey string `json:"api_key,omitempty"`
	Module string `json:"module,omitempty"`
}

// call performs a single JSON-RPC round trip. Transport-level failures are
// wrapped in *ConnectionError; application-level failures surface as
// *RPCError.
func (c *HTTPClient) call(ctx context.Context, tenant, method string, params moduleParams, result interface{}) error {
	params.Tenant = tenant
	params.Login = c.login
	params.APIKey = c.apiKey

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/rpc", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &ConnectionError{Tenant: tenant, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Control endpoints answer JSON-RPC errors with 200; anything
		// else means we did not reach the control layer at all.
		return &ConnectionError{Tenant: tenant, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &ConnectionError{Tenant: tenant, Err: err}
	}

	var envelope rpcResponse
	if err := json.Unmarshal(data, &envelope); err != nil {
		return &ConnectionError{Tenant: tenant, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if envelope.Error != nil {
		return envelope.Error
	}
	if result != nil {
		if err := json.Unmarshal(envelope.Result, result); err != nil {
			return &ConnectionError{Tenant: tenant, Err: fmt.Errorf("malformed result: %w", err)}
		}
	}
	return nil
}

// DiscoverModules implements Client.
func (c *HTTPClient) DiscoverModules(ctx context.Context, tenant string) (*Discovery, error) {
	var discovery Discovery
	if err := c.call(ctx, tenant, "module.list", moduleParams{}, &discovery); err != nil {
		return nil, err
	}
	logging.Debug("Runtime", "Discovered %d installed, %d available modules for tenant %s",
		len(discovery.Installed), len(discovery.Available), tenant)
	return &discovery, nil
}

// InstallModule implements Client.
func (c *HTTPClient) InstallModule(ctx context.Context, tenant, name string) error {
	logging.Debug("Runtime", "Installing module %s for tenant %s", name, tenant)
	return c.call(ctx, tenant, "module.install", moduleParams{Module: name}, nil)
}

// InstalledModules implements Client.
func (c *HTTPClient) InstalledModules(ctx context.Context, tenant string) ([]string, error) {
	var installed []string
	if err := c.call(ctx, tenant, "module.installed", moduleParams{}, &installed); err != nil {
		return nil, err
	}
	return installed, nil
}
