package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// AliasClient manages Weaviate collection aliases over the REST API.
// Replacing an alias target with PUT is atomic on the server, which is
// what makes the blue-green index switch safe.
type AliasClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewAliasClient(scheme, host string) *AliasClient {
	return &AliasClient{
		baseURL:    fmt.Sprintf("%s://%s/v1/aliases", scheme, host),
		httpClient: http.DefaultClient,
	}
}

// NewAliasClientForURL is used by tests to point at an httptest server.
func NewAliasClientForURL(baseURL string) *AliasClient {
	return &AliasClient{baseURL: baseURL + "/v1/aliases", httpClient: http.DefaultClient}
}

type aliasPayload struct {
	Alias string `json:"alias,omitempty"`
	Class string `json:"class"`
}

// Target returns the collection an alias points at, or "" when the alias
// does not exist.
func (c *AliasClient) Target(ctx context.Context, alias string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+alias, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get alias %s: %w", alias, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get alias %s: unexpected status %d", alias, resp.StatusCode)
	}

	var payload aliasPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode alias %s: %w", alias, err)
	}
	return payload.Class, nil
}

// Create points a new alias at a collection.
func (c *AliasClient) Create(ctx context.Context, alias, collection string) error {
	body, err := json.Marshal(aliasPayload{Alias: alias, Class: collection})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "create alias "+alias)
}

// Switch atomically repoints an existing alias at a new collection.
func (c *AliasClient) Switch(ctx context.Context, alias, collection string) error {
	body, err := json.Marshal(aliasPayload{Class: collection})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+"/"+alias, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "switch alias "+alias)
}

// Delete removes an alias without touching its target collection.
func (c *AliasClient) Delete(ctx context.Context, alias string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/"+alias, nil)
	if err != nil {
		return err
	}
	return c.do(req, "delete alias "+alias)
}

func (c *AliasClient) do(req *http.Request, op string) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, string(detail))
	}
	return nil
}
