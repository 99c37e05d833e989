// Package netinfo resolves facts about the host's network environment.
package netinfo

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	transporthttp "github.com/utxod/utxod/internal/pkg/transport/http"
)

const ipEndpoint = "https://ipinfo.io/ip"

// Resolver looks up the machine's public IP address.
type Resolver struct {
	client   *retryablehttp.Client
	endpoint string
}

// NewResolver builds a resolver backed by a retrying HTTP client.
func NewResolver() *Resolver {
	return &Resolver{
		client:   transporthttp.NewClient(transporthttp.WithTimeout(10 * time.Second)),
		endpoint: ipEndpoint,
	}
}

// PublicIP returns the caller's public IP as seen from the internet.
func (r *Resolver) PublicIP(ctx context.Context) (string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", r.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch public ip: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return "", fmt.Errorf("fetch public ip: unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	return strings.TrimSpace(string(body)), nil
}
