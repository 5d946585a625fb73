package solana

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"
)

// keyedSender signs and broadcasts legacy transactions with a local ed25519
// keypair. By convention accounts[0] is the program id and the rest are
// writable program accounts.
type keyedSender struct {
	client *RPCClient
	key    ed25519.PrivateKey
	payer  [32]byte
}

func NewKeyedSender(client *RPCClient, keyBase58 string) (InstructionSender, error) {
	raw, err := base58.Decode(keyBase58)
	if err != nil {
		return nil, fmt.Errorf("invalid wallet key: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("invalid wallet key: got %d bytes, want %d", len(raw), ed25519.PrivateKeySize)
	}
	s := &keyedSender{client: client, key: ed25519.PrivateKey(raw)}
	copy(s.payer[:], raw[32:])
	return s, nil
}

// computeBudgetAddress is the ComputeBudget native program; instruction tag 3
// is SetComputeUnitPrice.
const computeBudgetAddress = "ComputeBudget111111111111111111111111111111"

const computeUnitPriceTag uint8 = 3

func (s *keyedSender) Send(ctx context.Context, accounts []string, data []byte, priorityFee uint64) (string, error) {
	if len(accounts) == 0 {
		return "", fmt.Errorf("no program account given")
	}
	programID, err := DecodeAddress(accounts[0])
	if err != nil {
		return "", err
	}

	blockhash, err := s.client.GetLatestBlockhash(ctx)
	if err != nil {
		return "", err
	}

	// Account table: payer (signer, writable), then the writable program
	// accounts, with the read-only program ids at the end.
	keys := [][32]byte{s.payer}
	for _, addr := range accounts[1:] {
		key, err := DecodeAddress(addr)
		if err != nil {
			return "", err
		}
		keys = append(keys, key)
	}
	programIndex := uint8(len(keys))
	keys = append(keys, programID)

	readOnly := uint8(1)
	var budgetIndex uint8
	if priorityFee > 0 {
		budgetID, err := DecodeAddress(computeBudgetAddress)
		if err != nil {
			return "", err
		}
		budgetIndex = uint8(len(keys))
		keys = append(keys, budgetID)
		readOnly = 2
	}

	var msg bytes.Buffer
	msg.Write([]byte{1, 0, readOnly}) // one signer, no read-only signed
	writeCompactU16(&msg, uint16(len(keys)))
	for i := range keys {
		msg.Write(keys[i][:])
	}
	msg.Write(blockhash[:])

	instructions := uint16(1)
	if priorityFee > 0 {
		instructions = 2
	}
	writeCompactU16(&msg, instructions)
	if priorityFee > 0 {
		var fee bytes.Buffer
		fee.WriteByte(computeUnitPriceTag)
		writeUint64(&fee, priorityFee)
		msg.WriteByte(budgetIndex)
		writeCompactU16(&msg, 0)
		writeCompactU16(&msg, uint16(fee.Len()))
		msg.Write(fee.Bytes())
	}
	msg.WriteByte(programIndex)
	writeCompactU16(&msg, uint16(programIndex))
	for i := uint8(0); i < programIndex; i++ {
		msg.WriteByte(i)
	}
	writeCompactU16(&msg, uint16(len(data)))
	msg.Write(data)

	signature := ed25519.Sign(s.key, msg.Bytes())

	var tx bytes.Buffer
	writeCompactU16(&tx, 1)
	tx.Write(signature)
	tx.Write(msg.Bytes())

	if err := s.client.SendTransaction(ctx, base64.StdEncoding.EncodeToString(tx.Bytes())); err != nil {
		return "", err
	}
	return base58.Encode(signature), nil
}

func writeCompactU16(buf *bytes.Buffer, v uint16) {
	for v >= 0x80 {
		buf.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	buf.WriteByte(byte(v))
}
