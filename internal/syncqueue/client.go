/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package syncqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"trading-hall-sync-go/internal/models"
	"trading-hall-sync-go/internal/signing"

	"golang.org/x/net/http2"
)

const maxErrorBody = 512

func createCustomHttpClient(timeout time.Duration) (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

// post delivers one queue item to {base}/api/sync/{type}
func (q *Queue) post(ctx context.Context, item models.QueueItem) error {
	wire := models.WirePayload{SyncPayload: item.Data, Ts: q.now().UnixMilli()}
	wire.Type = item.Type

	body, err := json.Marshal(wire)
	if err != nil {
		return fmt.Errorf("unable to encode payload: %w", err)
	}

	url := q.cfg.RemoteBaseURL + "/api/sync/" + string(item.Type)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("unable to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signing.HeaderSignature, signing.Sign(body, q.cfg.Secret))

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("sync request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("remote rejected %s with status %d: %s", item.Type, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// FetchRemoteLatest retrieves the remote's canonical lists with a signed GET
func (q *Queue) FetchRemoteLatest(ctx context.Context) (*models.RemoteSnapshot, error) {
	if !q.RemoteConfigured() {
		return nil, ErrRemoteNotConfigured
	}

	ts := q.now().UnixMilli()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.cfg.RemoteBaseURL+"/api/sync/list", nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build request: %w", err)
	}
	req.Header.Set(signing.HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(signing.HeaderSignature, signing.SignTimestamp(ts, q.cfg.Secret))

	resp, err := q.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("remote list failed with status %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}

	var snapshot models.RemoteSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		return nil, fmt.Errorf("unable to decode remote list: %w", err)
	}
	return &snapshot, nil
}
