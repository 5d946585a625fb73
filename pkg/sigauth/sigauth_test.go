package sigauth_test

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/bitlift/bitlift/pkg/sigauth"
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"
)

func testMessage(timeout uint64) sigauth.Message {
	var paymentHash [32]byte
	for i := range paymentHash {
		paymentHash[i] = byte(i)
	}
	return sigauth.Message{
		Amount:      150_000,
		Expiry:      1_900_000_000,
		Sequence:    7,
		PaymentHash: paymentHash,
		Timeout:     timeout,
	}
}

func TestSerializeLayout(t *testing.T) {
	msg := testMessage(1_800_000_000)

	buf := msg.Serialize(sigauth.PrefixInitialize)

	prefixLen := len(sigauth.PrefixInitialize)
	require.Len(t, buf, prefixLen+8+8+8+32+8)
	require.Equal(t, []byte("initialize"), buf[:prefixLen])
	require.Equal(t, msg.Amount, binary.LittleEndian.Uint64(buf[prefixLen:]))
	require.Equal(t, msg.Expiry, binary.LittleEndian.Uint64(buf[prefixLen+8:]))
	require.Equal(t, msg.Sequence, binary.LittleEndian.Uint64(buf[prefixLen+16:]))
	require.Equal(t, msg.PaymentHash[:], buf[prefixLen+24:prefixLen+56])
	require.Equal(t, msg.Timeout, binary.LittleEndian.Uint64(buf[prefixLen+56:]))
}

func TestSignAndVerify(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	msg := testMessage(uint64(now.Add(time.Hour).Unix()))

	auth := sigauth.Sign(key, sigauth.PrefixInitialize, msg, nil)
	require.Equal(t, msg.Timeout, auth.Timeout)

	err = sigauth.Verify(auth, key.PubKey(), sigauth.PrefixInitialize, msg, now, 5*time.Minute)
	require.NoError(t, err)
}

func TestVerifyRejectsPrefixReplay(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	msg := testMessage(uint64(now.Add(time.Hour).Unix()))

	auth := sigauth.Sign(key, sigauth.PrefixRefund, msg, nil)

	err = sigauth.Verify(auth, key.PubKey(), sigauth.PrefixInitialize, msg, now, 5*time.Minute)
	require.ErrorIs(t, err, sigauth.ErrPrefixMismatch)
}

func TestVerifyRejectsExpiredEvenWithValidSignature(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)

	// Timeout inside the grace period.
	msg := testMessage(uint64(now.Add(time.Minute).Unix()))
	auth := sigauth.Sign(key, sigauth.PrefixClaimInitialize, msg, nil)

	err = sigauth.Verify(auth, key.PubKey(), sigauth.PrefixClaimInitialize, msg, now, 5*time.Minute)
	require.ErrorIs(t, err, sigauth.ErrExpired)

	// Timeout already past.
	msg = testMessage(uint64(now.Add(-time.Hour).Unix()))
	auth = sigauth.Sign(key, sigauth.PrefixClaimInitialize, msg, nil)

	err = sigauth.Verify(auth, key.PubKey(), sigauth.PrefixClaimInitialize, msg, now, 5*time.Minute)
	require.ErrorIs(t, err, sigauth.ErrExpired)
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	msg := testMessage(uint64(now.Add(time.Hour).Unix()))
	auth := sigauth.Sign(key, sigauth.PrefixInitialize, msg, nil)

	tampered := msg
	tampered.Amount++
	err = sigauth.Verify(auth, key.PubKey(), sigauth.PrefixInitialize, tampered, now, 5*time.Minute)
	require.ErrorIs(t, err, sigauth.ErrSignatureInvalid)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	otherKey, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	msg := testMessage(uint64(now.Add(time.Hour).Unix()))
	auth := sigauth.Sign(key, sigauth.PrefixInitialize, msg, nil)

	err = sigauth.Verify(auth, otherKey.PubKey(), sigauth.PrefixInitialize, msg, now, 5*time.Minute)
	require.ErrorIs(t, err, sigauth.ErrSignatureInvalid)
}

func TestVerifyRejectsTimeoutMismatch(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	msg := testMessage(uint64(now.Add(time.Hour).Unix()))
	auth := sigauth.Sign(key, sigauth.PrefixInitialize, msg, nil)
	auth.Timeout += 60

	err = sigauth.Verify(auth, key.PubKey(), sigauth.PrefixInitialize, msg, now, 5*time.Minute)
	require.ErrorIs(t, err, sigauth.ErrSignatureInvalid)
}

func TestVerifyRejectsMissingAuthorization(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	msg := testMessage(0)
	err = sigauth.Verify(nil, key.PubKey(), sigauth.PrefixInitialize, msg, time.Now(), time.Minute)
	require.ErrorIs(t, err, sigauth.ErrSignatureInvalid)
}
