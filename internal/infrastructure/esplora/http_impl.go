package esplora

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bitlift/bitlift/internal/core/domain"
	"github.com/bitlift/bitlift/internal/core/ports"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// httpService talks to an Esplora-compatible HTTP REST API.
type httpService struct {
	baseURL string
	client  *http.Client
}

func newHTTPService(url string) *httpService {
	return &httpService{
		baseURL: strings.TrimRight(url, "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func errTxUnconfirmed(txid chainhash.Hash) error {
	return fmt.Errorf("transaction %s is not confirmed", txid)
}

// get fetches path and returns the body, classifying network failures and
// server errors as transient.
func (s *httpService) get(ctx context.Context, path string, limit int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, domain.Transient("get "+path, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, domain.Transient("read "+path, err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, domain.Transient("get "+path,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b))))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d for %s: %s",
			resp.StatusCode, path, strings.TrimSpace(string(b)))
	}
	return b, nil
}

func (s *httpService) GetTipHeight(ctx context.Context) (uint32, error) {
	b, err := s.get(ctx, "/blocks/tip/height", 64)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("parse height: %w", err)
	}
	return uint32(n), nil
}

func (s *httpService) GetBlockHash(ctx context.Context, height uint32) (*chainhash.Hash, error) {
	b, err := s.get(ctx, fmt.Sprintf("/block-height/%d", height), 128)
	if err != nil {
		return nil, err
	}
	hash, err := chainhash.NewHashFromStr(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("parse block hash: %w", err)
	}
	return hash, nil
}

func (s *httpService) GetBlockHeader(ctx context.Context, height uint32) (*wire.BlockHeader, error) {
	hash, err := s.GetBlockHash(ctx, height)
	if err != nil {
		return nil, err
	}

	b, err := s.get(ctx, "/block/"+hash.String()+"/header", 256)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("decode header hex: %w", err)
	}

	var header wire.BlockHeader
	if err := header.Deserialize(bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("deserialize header: %w", err)
	}
	return &header, nil
}

func (s *httpService) GetTransactionStatus(ctx context.Context, txid chainhash.Hash) (*ports.TxStatus, error) {
	b, err := s.get(ctx, "/tx/"+txid.String()+"/status", 1024)
	if err != nil {
		return nil, err
	}

	var status struct {
		Confirmed   bool   `json:"confirmed"`
		BlockHeight uint32 `json:"block_height"`
		BlockHash   string `json:"block_hash"`
	}
	if err := json.Unmarshal(b, &status); err != nil {
		return nil, fmt.Errorf("parse tx status: %w", err)
	}

	out := &ports.TxStatus{Confirmed: status.Confirmed, BlockHeight: status.BlockHeight}
	if status.Confirmed {
		hash, err := chainhash.NewHashFromStr(status.BlockHash)
		if err != nil {
			return nil, fmt.Errorf("parse block hash: %w", err)
		}
		out.BlockHash = *hash
	}
	return out, nil
}

func (s *httpService) GetRawTransaction(ctx context.Context, txid chainhash.Hash) ([]byte, error) {
	b, err := s.get(ctx, "/tx/"+txid.String()+"/hex", 4<<20)
	if err != nil {
		return nil, err
	}
	raw, err := hex.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("decode tx hex: %w", err)
	}
	return raw, nil
}

func (s *httpService) GetMerkleProof(ctx context.Context, txid chainhash.Hash) (*ports.MerkleProof, error) {
	b, err := s.get(ctx, "/tx/"+txid.String()+"/merkle-proof", 64<<10)
	if err != nil {
		return nil, err
	}

	var proof struct {
		BlockHeight uint32   `json:"block_height"`
		Merkle      []string `json:"merkle"`
		Pos         uint32   `json:"pos"`
	}
	if err := json.Unmarshal(b, &proof); err != nil {
		return nil, fmt.Errorf("parse merkle proof: %w", err)
	}

	siblings := make([]chainhash.Hash, len(proof.Merkle))
	for i, s := range proof.Merkle {
		hash, err := chainhash.NewHashFromStr(s)
		if err != nil {
			return nil, fmt.Errorf("parse merkle sibling %d: %w", i, err)
		}
		siblings[i] = *hash
	}
	return &ports.MerkleProof{
		BlockHeight: proof.BlockHeight,
		Position:    proof.Pos,
		Siblings:    siblings,
	}, nil
}
