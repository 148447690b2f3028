// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// =============================================================================
// ATTESTATION
// =============================================================================

// AttestationReport is the hardware attestation proof for one model
// deployment: the enclave's signing address plus the vendor quotes.
type AttestationReport struct {
	SigningAddress  string              `json:"signing_address"`
	NvidiaPayload   string              `json:"nvidia_payload"`
	IntelQuote      string              `json:"intel_quote"`
	AllAttestations []AttestationReport `json:"all_attestations,omitempty"`
}

/// attestationResponse covers both response shapes the gateway emits: a bare
// report, or a wrapper carrying a model_attestations list.
type attestationResponse struct {
	AttestationReport
	ModelAttestations []AttestationReport `json:"model_attestations"`
}

// MessageSignature is the enclave signature over one assistant message,
// fetched by provider message id.
type MessageSignature struct {
	Text           string `json:"text"`
	Signature      string `json:"signature"`
	SigningAlgo    string `json:"signing_algo"`
	SigningAddress string `json:"signing_address,omitempty"`
}

// getJSON issues a GET against the gateway and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
		return &RequestError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxResponseSize)).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// AttestationReport fetches the attestation report for a model.
func (c *Client) AttestationReport(ctx context.Context, model string) (*AttestationReport, error) {
	var resp attestationResponse
	path := "/attestation/report?model=" + url.QueryEscape(model)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	if len(resp.ModelAttestations) > 0 {
		return &resp.ModelAttestations[0], nil
	}
	return &resp.AttestationReport, nil
}

// MessageSignature fetches the enclave signature for an assistant message.
// The message id is the provider id carried in the terminal snapshot's
// metadata.
func (c *Client) MessageSignature(ctx context.Context, messageID, model string) (*MessageSignature, error) {
	var sig MessageSignature
	path := fmt.Sprintf("/signature/%s?model=%s&signing_algo=ecdsa",
		url.PathEscape(messageID), url.QueryEscape(model))
	if err := c.getJSON(ctx, path, &sig); err != nil {
		return nil, err
	}
	return &sig, nil
}
