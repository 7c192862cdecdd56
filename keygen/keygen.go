// Package keygen obtains fresh post-quantum keypairs from trusted remote
// key-generation services.
//
// The supported scheme cannot be derived from local entropy or a password,
// so there is deliberately no local synthesis fallback: when every
// configured endpoint fails, the only recourse is importing a pre-generated
// key file.
package keygen

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"quantumharmony.io/vault/keystore"
)

const (
	// DefaultTimeout bounds each per-endpoint request.
	DefaultTimeout = 15 * time.Second

	// secretKeyHexLen is the expected secret_key_hex length: 128 bytes.
	secretKeyHexLen = keystore.SecretKeySize * 2

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 1 << 16
)

// ErrUnavailable is returned when every configured endpoint has been tried
// and rejected.
var ErrUnavailable = errors.New("keygen: all key-generation endpoints failed; import a pre-generated key file instead")

// DefaultEndpoints are the built-in generation service candidates, tried in
// order after any explicit preferred endpoint.
var DefaultEndpoints = []string{
	"http://localhost:8106/v1/keypair",
	"http://localhost:3000/v1/keypair",
}

// response is the generation endpoint wire contract.
type response struct {
	Success      bool   `json:"success"`
	SecretKeyHex string `json:"secret_key_hex"`
	Address      string `json:"address"`
}

// Config configures a Client.
type Config struct {
	// Endpoints are the candidate generation services, tried in order.
	// Empty means DefaultEndpoints.
	Endpoints []string

	// Timeout bounds each endpoint attempt. Zero means DefaultTimeout.
	Timeout time.Duration

	// HTTPClient overrides the transport, mainly for tests.
	HTTPClient *http.Client

	// Logger receives per-endpoint failure diagnostics.
	Logger zerolog.Logger
}

// Client requests keypairs from an ordered list of candidate endpoints.
type Client struct {
	endpoints []string
	timeout   time.Duration
	http      *http.Client
	log       zerolog.Logger
}

// New constructs a Client from cfg.
func New(cfg Config) *Client {
	endpoints := cfg.Endpoints
	if len(endpoints) == 0 {
		endpoints = DefaultEndpoints
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		endpoints: append([]string(nil), endpoints...),
		timeout:   timeout,
		http:      httpClient,
		log:       cfg.Logger,
	}
}

// Generate requests a fresh keypair, trying preferred first (when non-empty)
// and then each configured endpoint in order. Every rejection moves on to
// the next candidate; exhaustion returns ErrUnavailable.
func (c *Client) Generate(ctx context.Context, preferred string) (keystore.KeyPair, error) {
	candidates := make([]string, 0, len(c.endpoints)+1)
	if preferred != "" {
		candidates = append(candidates, preferred)
	}
	candidates = append(candidates, c.endpoints...)

	for _, endpoint := range candidates {
		kp, err := c.request(ctx, endpoint)
		if err == nil {
			c.log.Info().Str("endpoint", endpoint).Msg("keypair generated")
			return kp, nil
		}
		if ctx.Err() != nil {
			return keystore.KeyPair{}, ctx.Err()
		}
		c.log.Warn().Str("endpoint", endpoint).Err(err).Msg("key-generation endpoint rejected")
	}
	return keystore.KeyPair{}, ErrUnavailable
}

func (c *Client) request(ctx context.Context, endpoint string) (keystore.KeyPair, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, endpoint, bytes.NewReader([]byte("{}")))
	if err != nil {
		return keystore.KeyPair{}, fmt.Errorf("keygen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return keystore.KeyPair{}, fmt.Errorf("keygen: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return keystore.KeyPair{}, fmt.Errorf("keygen: endpoint returned status %d", resp.StatusCode)
	}
	if err := checkJSONContentType(resp.Header.Get("Content-Type")); err != nil {
		return keystore.KeyPair{}, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return keystore.KeyPair{}, fmt.Errorf("keygen: read response: %w", err)
	}
	var r response
	if err := json.Unmarshal(body, &r); err != nil {
		return keystore.KeyPair{}, fmt.Errorf("keygen: parse response: %w", err)
	}
	if !r.Success {
		return keystore.KeyPair{}, errors.New("keygen: endpoint reported failure")
	}
	if len(r.SecretKeyHex) != secretKeyHexLen {
		return keystore.KeyPair{}, fmt.Errorf("keygen: secret_key_hex is %d chars, expected %d",
			len(r.SecretKeyHex), secretKeyHexLen)
	}
	secret, err := hex.DecodeString(r.SecretKeyHex)
	if err != nil {
		return keystore.KeyPair{}, fmt.Errorf("keygen: secret_key_hex is not hex: %w", err)
	}
	return keystore.NewKeyPair(secret)
}

// Ping probes an endpoint's health route with a short GET. It reports nil
// when the service answers 2xx.
func (c *Client) Ping(ctx context.Context, endpoint string) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("keygen: build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("keygen: ping failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("keygen: ping returned status %d", resp.StatusCode)
	}
	return nil
}

func checkJSONContentType(ct string) error {
	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "application/json" {
		return fmt.Errorf("keygen: unexpected content type %q", ct)
	}
	return nil
}
