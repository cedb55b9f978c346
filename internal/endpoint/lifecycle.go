package endpoint

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/modelbench-ai/modelbench/engine/pkg/types"
)

const (
	// DefaultReadyTimeout bounds the wait for a deploying endpoint.
	DefaultReadyTimeout = 10 * time.Minute

	statusRunning = "running"
	statusFailed  = "failed"

	readyPollInterval = 10 * time.Second
)

// EndpointSpec describes a managed endpoint to create for the duration of an
// evaluation run.
type EndpointSpec struct {
	Name         string `json:"name"`
	Repository   string `json:"repository"`
	Framework    string `json:"framework,omitempty"`
	Accelerator  string `json:"accelerator,omitempty"`
	Vendor       string `json:"vendor,omitempty"`
	Region       string `json:"region,omitempty"`
	InstanceType string `json:"instance_type,omitempty"`
	InstanceSize string `json:"instance_size,omitempty"`
}

// LifecycleClient talks to the managed-inference control plane: create or
// reuse an endpoint, wait for it to deploy, tear it down.
type LifecycleClient struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewLifecycleClient creates a control-plane client.
func NewLifecycleClient(baseURL, token string) (*LifecycleClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("lifecycle client: baseURL is required")
	}
	return &LifecycleClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      token,
	}, nil
}

// Endpoint is a handle on a managed endpoint.
type Endpoint struct {
	Name   string `json:"name"`
	URL    string `json:"url"`
	Status string `json:"status"`

	lc *LifecycleClient
}

// Create provisions a new endpoint from spec. The returned handle is usually
// still deploying; call WaitReady before using it.
func (l *LifecycleClient) Create(ctx context.Context, spec EndpointSpec) (*Endpoint, error) {
	body, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("create endpoint: marshal: %w", err)
	}

	ep, err := l.doEndpoint(ctx, http.MethodPost, l.baseURL+"/endpoint", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create endpoint %q: %w", spec.Name, err)
	}
	return ep, nil
}

// Reuse fetches a handle on an already-provisioned endpoint by name.
func (l *LifecycleClient) Reuse(ctx context.Context, name string) (*Endpoint, error) {
	ep, err := l.doEndpoint(ctx, http.MethodGet, l.baseURL+"/endpoint/"+name, nil)
	if err != nil {
		return nil, fmt.Errorf("reuse endpoint %q: %w", name, err)
	}
	return ep, nil
}

// WaitReady polls the endpoint until it reports running, the timeout
// expires, or deployment fails. Expiry surfaces as an endpoint-not-ready
// error, fatal to the evaluation run.
func (e *Endpoint) WaitReady(ctx context.Context, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}
	deadline := time.Now().Add(timeout)

	for {
		if e.Status == statusRunning {
			return nil
		}
		if e.Status == statusFailed {
			return notReadyError(e.Name, fmt.Errorf("deployment failed"))
		}
		if time.Now().After(deadline) {
			return notReadyError(e.Name, fmt.Errorf("not running after %s (status %q)", timeout, e.Status))
		}

		select {
		case <-ctx.Done():
			return notReadyError(e.Name, ctx.Err())
		case <-time.After(readyPollInterval):
		}

		refreshed, err := e.lc.Reuse(ctx, e.Name)
		if err != nil {
			return notReadyError(e.Name, err)
		}
		e.Status = refreshed.Status
		e.URL = refreshed.URL
	}
}

// Delete tears the endpoint down.
func (e *Endpoint) Delete(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, e.lc.baseURL+"/endpoint/"+e.Name, nil)
	if err != nil {
		return fmt.Errorf("delete endpoint %q: build request: %w", e.Name, err)
	}
	e.lc.setAuth(req)

	resp, err := e.lc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete endpoint %q: http: %w", e.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete endpoint %q: unexpected status %d", e.Name, resp.StatusCode)
	}
	return nil
}

func (l *LifecycleClient) doEndpoint(ctx context.Context, method, url string, body io.Reader) (*Endpoint, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	l.setAuth(req)

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, raw)
	}

	var ep Endpoint
	if err := json.Unmarshal(raw, &ep); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	ep.lc = l
	return &ep, nil
}

func (l *LifecycleClient) setAuth(req *http.Request) {
	if l.token != "" {
		req.Header.Set("Authorization", "Bearer "+l.token)
	}
}

func notReadyError(name string, err error) error {
	return &types.EvalError{
		Kind:  types.ErrKindEndpointNotReady,
		Index: -1,
		Err:   fmt.Errorf("endpoint %q: %w", name, err),
	}
}
