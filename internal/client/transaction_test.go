package client

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testTransaction(t *testing.T) (*Transaction, solana.PrivateKey) {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return &Transaction{
		SignerID:   "benjiman.testnet",
		PublicKey:  key.PublicKey(),
		Nonce:      7,
		ReceiverID: "linkdrop.testnet",
		BlockHash:  [32]byte{1, 2, 3},
		Actions: []FunctionCallAction{{
			MethodName: "send",
			Args:       []byte(`{"public_key":"ed25519:x"}`),
			Gas:        300_000_000_000_000,
			Deposit:    uint256.MustFromDecimal("1000000000000000000000000"),
		}},
	}, key
}

func TestTransactionSerializeLayout(t *testing.T) {
	tx, _ := testTransaction(t)
	data, err := tx.Serialize()
	require.NoError(t, err)

	// signer_id: u32 length + bytes
	assert.Equal(t, uint32(len("benjiman.testnet")), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, "benjiman.testnet", string(data[4:20]))
	// public key: ed25519 tag + 32 bytes
	assert.Equal(t, byte(0), data[20])
	assert.Equal(t, tx.PublicKey[:], data[21:53])
	// nonce
	assert.Equal(t, uint64(7), binary.LittleEndian.Uint64(data[53:61]))

	// trailing u128 deposit: 10^24 = 0xd3c21bcecceda1000000
	tail := data[len(data)-16:]
	lo := binary.LittleEndian.Uint64(tail[:8])
	hi := binary.LittleEndian.Uint64(tail[8:])
	assert.Equal(t, uint64(0xd3c2), hi)
	assert.Equal(t, uint64(0x1bcecceda1000000), lo)
}

func TestTransactionSignAndDecode(t *testing.T) {
	tx, key := testTransaction(t)
	signed, hash, err := tx.Sign(key)
	require.NoError(t, err)

	wantHash, err := tx.Hash()
	require.NoError(t, err)
	assert.Equal(t, wantHash, hash)

	st, err := DecodeSignedTransaction(signed)
	require.NoError(t, err)
	assert.Equal(t, tx.SignerID, st.Transaction.SignerID)
	assert.Equal(t, tx.ReceiverID, st.Transaction.ReceiverID)
	assert.Equal(t, tx.Nonce, st.Transaction.Nonce)
	assert.Equal(t, tx.BlockHash, st.Transaction.BlockHash)
	require.Len(t, st.Transaction.Actions, 1)
	assert.Equal(t, "send", st.Transaction.Actions[0].MethodName)
	assert.Equal(t, tx.Actions[0].Args, st.Transaction.Actions[0].Args)
	assert.Equal(t, tx.Actions[0].Gas, st.Transaction.Actions[0].Gas)
	assert.True(t, tx.Actions[0].Deposit.Eq(st.Transaction.Actions[0].Deposit))

	ok, err := st.Verify()
	require.NoError(t, err)
	assert.True(t, ok)

	// tamper with the nonce
	st.Transaction.Nonce++
	ok, err = st.Verify()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTransactionSignRejectsForeignKey(t *testing.T) {
	tx, _ := testTransaction(t)
	other, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	_, _, err = tx.Sign(other)
	assert.Error(t, err)
}

func TestTransactionRejectsOversizedDeposit(t *testing.T) {
	tx, _ := testTransaction(t)
	tx.Actions[0].Deposit = new(uint256.Int).Lsh(uint256.NewInt(1), 130)
	_, err := tx.Serialize()
	assert.Error(t, err)
}

func TestTransactionNilDepositIsZero(t *testing.T) {
	tx, key := testTransaction(t)
	tx.Actions[0].Deposit = nil
	signed, _, err := tx.Sign(key)
	require.NoError(t, err)
	st, err := DecodeSignedTransaction(signed)
	require.NoError(t, err)
	assert.True(t, st.Transaction.Actions[0].Deposit.IsZero())
}
