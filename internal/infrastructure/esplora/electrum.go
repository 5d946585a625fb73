package esplora

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/bitlift/bitlift/internal/core/ports"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// ElectrumClient implements the subset of the Electrum protocol the daemon
// needs: tip height and transaction merkle proofs.
type ElectrumClient struct {
	address string
	conn    net.Conn
	mu      sync.Mutex
	reqID   uint64
	timeout time.Duration
}

type electrumRequest struct {
	ID     uint64        `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

type electrumResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *electrumError  `json:"error,omitempty"`
}

type electrumError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewElectrumClient(address string, timeout time.Duration) *ElectrumClient {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &ElectrumClient{address: address, timeout: timeout}
}

func (c *ElectrumClient) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	dialer := &net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return domain.Transient("electrum connect", err)
	}
	c.conn = conn
	return nil
}

func (c *ElectrumClient) disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// call makes a newline-delimited JSON-RPC call. Connection-level failures
// tear down the socket so the next call reconnects.
func (c *ElectrumClient) call(ctx context.Context, method string, params ...interface{}) (json.RawMessage, error) {
	if err := c.connect(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.reqID++
	reqID := c.reqID
	c.mu.Unlock()

	requestBytes, err := json.Marshal(electrumRequest{ID: reqID, Method: method, Params: params})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	requestBytes = append(requestBytes, '\n')

	if err := c.conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		c.disconnect()
		return nil, domain.Transient("electrum write deadline", err)
	}
	if _, err := c.conn.Write(requestBytes); err != nil {
		c.disconnect()
		return nil, domain.Transient("electrum write", err)
	}

	if err := c.conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		c.disconnect()
		return nil, domain.Transient("electrum read deadline", err)
	}
	responseBytes, err := bufio.NewReader(c.conn).ReadBytes('\n')
	if err != nil {
		c.disconnect()
		return nil, domain.Transient("electrum read", err)
	}

	var response electrumResponse
	if err := json.Unmarshal(responseBytes, &response); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if response.Error != nil {
		return nil, fmt.Errorf("electrum error %d: %s", response.Error.Code, response.Error.Message)
	}
	if response.ID != reqID {
		return nil, fmt.Errorf("response ID mismatch: expected %d, got %d", reqID, response.ID)
	}
	return response.Result, nil
}

// GetBlockchainHeight fetches the current chain tip height.
func (c *ElectrumClient) GetBlockchainHeight(ctx context.Context) (uint32, error) {
	result, err := c.call(ctx, "blockchain.headers.subscribe")
	if err != nil {
		return 0, fmt.Errorf("blockchain.headers.subscribe failed: %w", err)
	}

	var header struct {
		Height uint32 `json:"height"`
	}
	if err := json.Unmarshal(result, &header); err != nil {
		return 0, fmt.Errorf("failed to parse header: %w", err)
	}
	return header.Height, nil
}

// GetMerkleProof fetches the inclusion path of a confirmed transaction.
func (c *ElectrumClient) GetMerkleProof(ctx context.Context, txid chainhash.Hash, height uint32) (*ports.MerkleProof, error) {
	result, err := c.call(ctx, "blockchain.transaction.get_merkle", txid.String(), height)
	if err != nil {
		return nil, fmt.Errorf("blockchain.transaction.get_merkle failed: %w", err)
	}

	var proof struct {
		BlockHeight uint32   `json:"block_height"`
		Merkle      []string `json:"merkle"`
		Pos         uint32   `json:"pos"`
	}
	if err := json.Unmarshal(result, &proof); err != nil {
		return nil, fmt.Errorf("failed to parse merkle proof: %w", err)
	}

	siblings := make([]chainhash.Hash, len(proof.Merkle))
	for i, s := range proof.Merkle {
		hash, err := chainhash.NewHashFromStr(s)
		if err != nil {
			return nil, fmt.Errorf("failed to parse merkle sibling %d: %w", i, err)
		}
		siblings[i] = *hash
	}
	return &ports.MerkleProof{
		BlockHeight: proof.BlockHeight,
		Position:    proof.Pos,
		Siblings:    siblings,
	}, nil
}

// Close closes the connection.
func (c *ElectrumClient) Close() {
	c.disconnect()
}
