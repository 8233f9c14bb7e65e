// Package platformclient models the validator-facing surface of the
// (out-of-scope, per spec.md §1) challenge HTTP server as a small
// collaborator interface — signature over a canonical message, never a
// server implementation.
package platformclient

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

// Job is one pending evaluation assignment as returned by MyJobs.
type Job struct {
	AgentHash    string `json:"agent_hash"`
	MinerHotkey  string `json:"miner_hotkey"`
	SubmissionID string `json:"submission_id"`
	BinaryReady  bool   `json:"binary_ready"`
}

// EvalResult is the outcome of one evaluation, submitted via SubmitResult.
type EvalResult struct {
	Score        float64
	TasksPassed  int
	TasksTotal   int
	TasksFailed  int
	TotalCostUSD float64
}

// Signer produces a detached signature over an arbitrary message, using
// the validator's keypair. Ed25519Signer adapts an ed25519.PrivateKey to
// this type.
type Signer func(message []byte) []byte

// ChallengeClient is the validator worker's view of the challenge
// server's bridge API (spec.md §6 "Validator ↔ platform HTTP"). No
// server-side implementation is provided — per spec.md's Non-goals the
// HTTP server itself is an external collaborator.
type ChallengeClient interface {
	MyJobs(ctx context.Context) ([]Job, error)
	DownloadBinary(ctx context.Context, agentHash string) ([]byte, error)
	SubmitResult(ctx context.Context, agentHash string, result EvalResult) error
}

// HTTPClient is the concrete ChallengeClient backed by net/http, signing
// every request with the validator's keypair as spec.md §6 describes.
type HTTPClient struct {
	BaseURL         string
	ChallengeID     string
	ValidatorHotkey string
	Sign            Signer
	HTTP            *http.Client
}

// NewHTTPClient builds a client with a 300-second request timeout,
// matching the original's reqwest::Client::builder().timeout(300s).
func NewHTTPClient(baseURL, challengeID, validatorHotkey string, sign Signer) *HTTPClient {
	return &HTTPClient{
		BaseURL:         baseURL,
		ChallengeID:     challengeID,
		ValidatorHotkey: validatorHotkey,
		Sign:            sign,
		HTTP:            &http.Client{Timeout: 300 * time.Second},
	}
}

func (c *HTTPClient) bridgeURL(suffix string) string {
	return fmt.Sprintf("%s/api/v1/bridge/%s/api/v1/validator/%s", c.BaseURL, c.ChallengeID, suffix)
}

func signHex(sign Signer, message string) string {
	sig := sign([]byte(message))
	return fmt.Sprintf("%x", sig)
}

type myJobsRequest struct {
	ValidatorHotkey string `json:"validator_hotkey"`
	Timestamp       int64  `json:"timestamp"`
	Signature       string `json:"signature"`
}

type myJobsResponse struct {
	Jobs []Job `json:"jobs"`
}

// MyJobs fetches the validator's pending assignments.
func (c *HTTPClient) MyJobs(ctx context.Context) ([]Job, error) {
	timestamp := time.Now().Unix()
	req := myJobsRequest{
		ValidatorHotkey: c.ValidatorHotkey,
		Timestamp:       timestamp,
		Signature:       signHex(c.Sign, fmt.Sprintf("get_my_jobs:%d", timestamp)),
	}
	var resp myJobsResponse
	if err := c.postJSON(ctx, c.bridgeURL("my_jobs"), req, &resp); err != nil {
		return nil, errors.Wrap(err, "my_jobs request failed")
	}
	return resp.Jobs, nil
}

type downloadBinaryRequest struct {
	ValidatorHotkey string `json:"validator_hotkey"`
	Timestamp       int64  `json:"timestamp"`
	Signature       string `json:"signature"`
}

// DownloadBinary fetches the compiled agent binary for agentHash.
func (c *HTTPClient) DownloadBinary(ctx context.Context, agentHash string) ([]byte, error) {
	timestamp := time.Now().Unix()
	reqBody := downloadBinaryRequest{
		ValidatorHotkey: c.ValidatorHotkey,
		Timestamp:       timestamp,
		Signature:       signHex(c.Sign, fmt.Sprintf("download_binary:%s:%d", agentHash, timestamp)),
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}
	url := c.bridgeURL("download_binary/" + agentHash)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.Errorf("binary download failed: %d - %s", resp.StatusCode, string(body))
	}
	if len(body) == 0 {
		return nil, errors.New("downloaded binary is empty")
	}
	return body, nil
}

type submitResultRequest struct {
	AgentHash       string  `json:"agent_hash"`
	ValidatorHotkey string  `json:"validator_hotkey"`
	Score           float64 `json:"score"`
	TasksPassed     int     `json:"tasks_passed"`
	TasksTotal      int     `json:"tasks_total"`
	TasksFailed     int     `json:"tasks_failed"`
	TotalCostUSD    float64 `json:"total_cost_usd"`
	Timestamp       int64   `json:"timestamp"`
	Signature       string  `json:"signature"`
}

// SubmitResult reports a completed evaluation.
func (c *HTTPClient) SubmitResult(ctx context.Context, agentHash string, result EvalResult) error {
	timestamp := time.Now().Unix()
	req := submitResultRequest{
		AgentHash:       agentHash,
		ValidatorHotkey: c.ValidatorHotkey,
		Score:           result.Score,
		TasksPassed:     result.TasksPassed,
		TasksTotal:      result.TasksTotal,
		TasksFailed:     result.TasksFailed,
		TotalCostUSD:    result.TotalCostUSD,
		Timestamp:       timestamp,
		Signature:       signHex(c.Sign, fmt.Sprintf("submit_result:%s:%d", agentHash, timestamp)),
	}
	return c.postJSON(ctx, c.bridgeURL("submit_result"), req, nil)
}

func (c *HTTPClient) postJSON(ctx context.Context, url string, body, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Errorf("request to %s failed: %d - %s", url, resp.StatusCode, string(respBody))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(respBody, out)
}

// Ed25519Signer adapts a raw ed25519 private key to the Signer type.
func Ed25519Signer(key ed25519.PrivateKey) Signer {
	return func(message []byte) []byte {
		return ed25519.Sign(key, message)
	}
}
