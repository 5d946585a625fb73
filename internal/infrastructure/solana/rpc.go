// Package solana adapts the swap escrow program and its embedded BTC relay on
// Solana. Program state is read from derived accounts over JSON-RPC; writes
// are packed here and submitted through an injected InstructionSender, keeping
// blockhash and signing mechanics outside the core.
package solana

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/mr-tron/base58"
)

const defaultRPCTimeout = 30 * time.Second

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// RPCClient is a minimal JSON-RPC 2.0 client for the node methods the
// adapter needs.
type RPCClient struct {
	endpoint  string
	client    *http.Client
	requestID atomic.Uint64
}

func NewRPCClient(endpoint string) *RPCClient {
	return &RPCClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultRPCTimeout},
	}
}

func (c *RPCClient) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.Transient("solana rpc "+method, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<24))
	if err != nil {
		return domain.Transient("solana rpc "+method, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return domain.Transient(
			"solana rpc "+method, fmt.Errorf("unexpected status %d", resp.StatusCode),
		)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solana rpc %s: unexpected status %d: %s", method, resp.StatusCode, respBody)
	}

	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("solana rpc %s: %w", method, rpcResp.Error)
	}
	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// GetSlot returns the latest confirmed slot.
func (c *RPCClient) GetSlot(ctx context.Context) (uint64, error) {
	var slot uint64
	params := []interface{}{map[string]string{"commitment": "confirmed"}}
	if err := c.call(ctx, "getSlot", params, &slot); err != nil {
		return 0, err
	}
	return slot, nil
}

type accountInfoResult struct {
	Value *struct {
		Data []string `json:"data"` // [payload, encoding]
	} `json:"value"`
}

// GetAccountData returns the raw data of an account, or nil if the account
// does not exist.
func (c *RPCClient) GetAccountData(ctx context.Context, address string) ([]byte, error) {
	params := []interface{}{
		address,
		map[string]string{"encoding": "base64", "commitment": "confirmed"},
	}
	var result accountInfoResult
	if err := c.call(ctx, "getAccountInfo", params, &result); err != nil {
		return nil, err
	}
	if result.Value == nil || len(result.Value.Data) == 0 {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("failed to decode account %s data: %w", address, err)
	}
	return data, nil
}

// SignatureInfo is one entry of getSignaturesForAddress, newest first.
type SignatureInfo struct {
	Signature string      `json:"signature"`
	Slot      uint64      `json:"slot"`
	Err       interface{} `json:"err"`
}

// GetSignaturesForAddress pages backwards through the transaction history of
// an address. before is exclusive; pass "" to start from the newest.
func (c *RPCClient) GetSignaturesForAddress(
	ctx context.Context, address, before string, limit int,
) ([]SignatureInfo, error) {
	config := map[string]interface{}{"commitment": "confirmed"}
	if before != "" {
		config["before"] = before
	}
	if limit > 0 {
		config["limit"] = limit
	}

	var result []SignatureInfo
	if err := c.call(
		ctx, "getSignaturesForAddress", []interface{}{address, config}, &result,
	); err != nil {
		return nil, err
	}
	return result, nil
}

type transactionResult struct {
	Slot uint64 `json:"slot"`
	Meta *struct {
		Err         interface{} `json:"err"`
		LogMessages []string    `json:"logMessages"`
	} `json:"meta"`
}

// GetTransactionLogs returns the log messages of a confirmed transaction, or
// nil if the transaction failed or is unknown.
func (c *RPCClient) GetTransactionLogs(ctx context.Context, signature string) ([]string, uint64, error) {
	params := []interface{}{
		signature,
		map[string]interface{}{
			"encoding":                       "json",
			"commitment":                     "confirmed",
			"maxSupportedTransactionVersion": 0,
		},
	}
	var result transactionResult
	if err := c.call(ctx, "getTransaction", params, &result); err != nil {
		return nil, 0, err
	}
	if result.Meta == nil || result.Meta.Err != nil {
		return nil, result.Slot, nil
	}
	return result.Meta.LogMessages, result.Slot, nil
}

type latestBlockhashResult struct {
	Value struct {
		Blockhash string `json:"blockhash"`
	} `json:"value"`
}

// GetLatestBlockhash returns the most recent confirmed blockhash.
func (c *RPCClient) GetLatestBlockhash(ctx context.Context) ([32]byte, error) {
	var hash [32]byte
	params := []interface{}{map[string]string{"commitment": "confirmed"}}
	var result latestBlockhashResult
	if err := c.call(ctx, "getLatestBlockhash", params, &result); err != nil {
		return hash, err
	}
	raw, err := base58.Decode(result.Value.Blockhash)
	if err != nil || len(raw) != 32 {
		return hash, fmt.Errorf("invalid blockhash %q", result.Value.Blockhash)
	}
	copy(hash[:], raw)
	return hash, nil
}

// SendTransaction broadcasts a base64-encoded signed transaction.
func (c *RPCClient) SendTransaction(ctx context.Context, encodedTx string) error {
	params := []interface{}{
		encodedTx,
		map[string]interface{}{"encoding": "base64", "preflightCommitment": "confirmed"},
	}
	return c.call(ctx, "sendTransaction", params, nil)
}

type prioritizationFee struct {
	Slot              uint64 `json:"slot"`
	PrioritizationFee uint64 `json:"prioritizationFee"`
}

// GetRecentPrioritizationFee returns the highest priority fee observed in the
// recent fee window, in micro-lamports per compute unit.
func (c *RPCClient) GetRecentPrioritizationFee(ctx context.Context, addresses []string) (uint64, error) {
	var fees []prioritizationFee
	if err := c.call(
		ctx, "getRecentPrioritizationFees", []interface{}{addresses}, &fees,
	); err != nil {
		return 0, err
	}
	var max uint64
	for _, f := range fees {
		if f.PrioritizationFee > max {
			max = f.PrioritizationFee
		}
	}
	return max, nil
}
