package client

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
)

const (
	keyTypeED25519 uint8 = 0

	// action enum index of FunctionCall in the NEAR Action type
	actionFunctionCall uint8 = 2
)

// FunctionCallAction calls a method on the receiver contract
type FunctionCallAction struct {
	MethodName string
	Args       []byte
	Gas        uint64
	Deposit    *uint256.Int // yoctoNEAR, must fit in u128
}

// Transaction is an unsigned NEAR transaction carrying function call actions
type Transaction struct {
	SignerID   string
	PublicKey  solana.PublicKey
	Nonce      uint64
	ReceiverID string
	BlockHash  [32]byte
	Actions    []FunctionCallAction
}

// SignedTransaction is the decoded form of a signed transaction
type SignedTransaction struct {
	Transaction Transaction
	Signature   solana.Signature
}

// Serialize encodes the transaction in Borsh
func (tx *Transaction) Serialize() ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)

	if err := writeString(enc, tx.SignerID); err != nil {
		return nil, err
	}
	if err := enc.WriteUint8(keyTypeED25519); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(tx.PublicKey[:], false); err != nil {
		return nil, err
	}
	if err := enc.WriteUint64(tx.Nonce, binary.LittleEndian); err != nil {
		return nil, err
	}
	if err := writeString(enc, tx.ReceiverID); err != nil {
		return nil, err
	}
	if err := enc.WriteBytes(tx.BlockHash[:], false); err != nil {
		return nil, err
	}

	if err := enc.WriteUint32(uint32(len(tx.Actions)), binary.LittleEndian); err != nil {
		return nil, err
	}
	for i := range tx.Actions {
		if err := writeFunctionCall(enc, &tx.Actions[i]); err != nil {
			return nil, fmt.Errorf("failed to encode action %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Hash returns sha256 of the serialized transaction, which is what gets signed
func (tx *Transaction) Hash() ([32]byte, error) {
	data, err := tx.Serialize()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(data), nil
}

// Sign signs the transaction and returns the Borsh encoded SignedTransaction and its hash
func (tx *Transaction) Sign(key solana.PrivateKey) ([]byte, [32]byte, error) {
	if !key.PublicKey().Equals(tx.PublicKey) {
		return nil, [32]byte{}, errors.New("private key does not match transaction public key")
	}

	data, err := tx.Serialize()
	if err != nil {
		return nil, [32]byte{}, fmt.Errorf("failed to serialize transaction: %w", err)
	}
	hash := sha256.Sum256(data)

	sig, err := key.Sign(hash[:])
	if err != nil {
		return nil, [32]byte{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	signed := make([]byte, 0, len(data)+1+len(sig))
	signed = append(signed, data...)
	signed = append(signed, keyTypeED25519)
	signed = append(signed, sig[:]...)
	return signed, hash, nil
}

// DecodeSignedTransaction parses a Borsh encoded SignedTransaction
// containing only function call actions
func DecodeSignedTransaction(data []byte) (*SignedTransaction, error) {
	dec := bin.NewBorshDecoder(data)
	var st SignedTransaction
	tx := &st.Transaction

	var err error
	if tx.SignerID, err = readString(dec); err != nil {
		return nil, fmt.Errorf("signer_id: %w", err)
	}
	if err := readKeyType(dec); err != nil {
		return nil, err
	}
	pub, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("public_key: %w", err)
	}
	copy(tx.PublicKey[:], pub)
	if tx.Nonce, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	if tx.ReceiverID, err = readString(dec); err != nil {
		return nil, fmt.Errorf("receiver_id: %w", err)
	}
	hash, err := dec.ReadNBytes(32)
	if err != nil {
		return nil, fmt.Errorf("block_hash: %w", err)
	}
	copy(tx.BlockHash[:], hash)

	count, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, fmt.Errorf("actions: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		action, err := readFunctionCall(dec)
		if err != nil {
			return nil, fmt.Errorf("action %d: %w", i, err)
		}
		tx.Actions = append(tx.Actions, *action)
	}

	if err := readKeyType(dec); err != nil {
		return nil, err
	}
	sig, err := dec.ReadNBytes(64)
	if err != nil {
		return nil, fmt.Errorf("signature: %w", err)
	}
	copy(st.Signature[:], sig)
	return &st, nil
}

// Verify checks the signature against the transaction public key
func (st *SignedTransaction) Verify() (bool, error) {
	hash, err := st.Transaction.Hash()
	if err != nil {
		return false, err
	}
	return st.Signature.Verify(st.Transaction.PublicKey, hash[:]), nil
}

func writeFunctionCall(enc *bin.Encoder, a *FunctionCallAction) error {
	deposit := a.Deposit
	if deposit == nil {
		deposit = new(uint256.Int)
	}
	if deposit.BitLen() > 128 {
		return errors.New("deposit exceeds u128")
	}

	if err := enc.WriteUint8(actionFunctionCall); err != nil {
		return err
	}
	if err := writeString(enc, a.MethodName); err != nil {
		return err
	}
	if err := enc.WriteUint32(uint32(len(a.Args)), binary.LittleEndian); err != nil {
		return err
	}
	if err := enc.WriteBytes(a.Args, false); err != nil {
		return err
	}
	if err := enc.WriteUint64(a.Gas, binary.LittleEndian); err != nil {
		return err
	}

	// u128 little endian: low word first
	if err := enc.WriteUint64(deposit.Uint64(), binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteUint64(new(uint256.Int).Rsh(deposit, 64).Uint64(), binary.LittleEndian)
}

func readFunctionCall(dec *bin.Decoder) (*FunctionCallAction, error) {
	kind, err := dec.ReadUint8()
	if err != nil {
		return nil, err
	}
	if kind != actionFunctionCall {
		return nil, fmt.Errorf("unsupported action type %d", kind)
	}

	var a FunctionCallAction
	if a.MethodName, err = readString(dec); err != nil {
		return nil, err
	}
	argsLen, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	if a.Args, err = dec.ReadNBytes(int(argsLen)); err != nil {
		return nil, err
	}
	if a.Gas, err = dec.ReadUint64(binary.LittleEndian); err != nil {
		return nil, err
	}
	lo, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	hi, err := dec.ReadUint64(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	a.Deposit = new(uint256.Int).Or(
		new(uint256.Int).Lsh(uint256.NewInt(hi), 64),
		uint256.NewInt(lo),
	)
	return &a, nil
}

func writeString(enc *bin.Encoder, s string) error {
	if err := enc.WriteUint32(uint32(len(s)), binary.LittleEndian); err != nil {
		return err
	}
	return enc.WriteBytes([]byte(s), false)
}

func readString(dec *bin.Decoder) (string, error) {
	n, err := dec.ReadUint32(binary.LittleEndian)
	if err != nil {
		return "", err
	}
	b, err := dec.ReadNBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readKeyType(dec *bin.Decoder) error {
	kt, err := dec.ReadUint8()
	if err != nil {
		return fmt.Errorf("key type: %w", err)
	}
	if kt != keyTypeED25519 {
		return fmt.Errorf("unsupported key type %d", kt)
	}
	return nil
}
