// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package renderer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/framecast/framecast/pkg/pipeline"
)

// HTTPClient renders stages on a remote render service.
//
// Each stage is POSTed as JSON to {BaseURL}/render. The service answers
// with a stream of JSON objects: zero or more progress messages
// {"percent":..,"message":..} followed by {"output_path":..} on success or
// {"error":..} on failure.
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
	Retry   RetryConfig
	Token   string

	logger zerolog.Logger
}

// NewHTTPClient returns a client with a per-call timeout.
func NewHTTPClient(baseURL string, timeout time.Duration, retry RetryConfig) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		Retry:   retry,
		logger:  log.With().Str("component", "renderer").Str("mode", ModeHTTP).Logger(),
	}
}

type renderMessage struct {
	Percent    *float64 `json:"percent,omitempty"`
	Message    string   `json:"message,omitempty"`
	OutputPath string   `json:"output_path,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// Render implements pipeline.Renderer.
func (h *HTTPClient) Render(ctx context.Context, req pipeline.RenderRequest, onProgress func(float64, string)) (string, error) {
	if h.BaseURL == "" {
		return "", errors.New("render service url is empty")
	}
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode render request: %w", err)
	}

	var out string
	err = withRetry(ctx, h.Retry, func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			h.logger.Warn().Str("job_id", req.JobID).Str("stage", string(req.Stage)).Int("attempt", attempt).Msg("Retrying render call")
		}
		var callErr error
		out, callErr = h.call(ctx, body, onProgress)
		return callErr
	})
	if err != nil {
		return "", err
	}
	return out, nil
}

func (h *HTTPClient) call(ctx context.Context, body []byte, onProgress func(float64, string)) (string, error) {
	client := h.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Minute}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson, application/json")
	if h.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+h.Token)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call render service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	dec := json.NewDecoder(resp.Body)
	for {
		var msg renderMessage
		if err := dec.Decode(&msg); err != nil {
			if errors.Is(err, io.EOF) {
				return "", errors.New("render service closed the stream without a result")
			}
			return "", fmt.Errorf("decode render response: %w", err)
		}
		switch {
		case msg.Error != "":
			return "", errors.New(msg.Error)
		case msg.OutputPath != "":
			if onProgress != nil {
				onProgress(100, msg.Message)
			}
			return msg.OutputPath, nil
		case msg.Percent != nil && onProgress != nil:
			onProgress(*msg.Percent, msg.Message)
		}
	}
}
