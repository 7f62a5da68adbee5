package linkdrop

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AlexZinkM/near-linkdrop/internal/client"
	"github.com/AlexZinkM/near-linkdrop/internal/config"
	"github.com/AlexZinkM/near-linkdrop/internal/crypto"
	"github.com/AlexZinkM/near-linkdrop/internal/model"

	"github.com/gagliardetto/solana-go"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

// Account is an on-chain account the issuer can act as
type Account interface {
	ID() string
	FunctionCall(ctx context.Context, contractID, method string, args interface{}, gas uint64, deposit *uint256.Int) (*model.Outcome, error)
	CallView(ctx context.Context, contractID, method string, args interface{}) ([]byte, error)
}

// Session is an open RPC session with both accounts resolved
type Session struct {
	Network         config.NetworkConfig
	ChainID         string
	Client          *client.NearClient
	Keys            *crypto.KeyStore
	ContractAccount *AccountHandle
	SendingAccount  *AccountHandle
}

// ErrInvalidAccountID is returned by Bootstrap for a malformed account id,
// before any request is made
var ErrInvalidAccountID = errors.New("invalid account id")

// Bootstrap connects to the node and resolves the contract and funding accounts.
// Accounts are not looked up on chain; a missing account or credential shows up
// on the first call made through its handle. On error nothing is returned: a
// malformed account id is a configuration error (ErrInvalidAccountID), any
// failure to reach the node is a *client.ConnectionError.
func Bootstrap(ctx context.Context, network config.NetworkConfig, contractID, fundingAccountID string, password crypto.PasswordFunc, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	for _, id := range []string{contractID, fundingAccountID} {
		if !crypto.ValidAccountID(id) {
			return nil, fmt.Errorf("%w %q", ErrInvalidAccountID, id)
		}
	}

	nearClient := client.NewNearClient(network.NodeURL, network.RPCTimeout)
	status, err := nearClient.Status(ctx)
	if err != nil {
		return nil, err
	}
	if expectsChainID(network.NetworkID) && status.ChainID != network.NetworkID {
		return nil, &client.ConnectionError{
			Endpoint: network.NodeURL,
			Err:      fmt.Errorf("node serves chain %q, expected %q", status.ChainID, network.NetworkID),
		}
	}
	logger.Debug("connected to node",
		zap.String("node", network.NodeURL),
		zap.String("chainId", status.ChainID),
		zap.String("version", status.Version.Version),
	)

	keys := crypto.NewKeyStore(network.CredentialsDir, network.NetworkID, password)
	contract := NewAccountHandle(contractID, nearClient, keys)
	sender := contract
	if fundingAccountID != contractID {
		sender = NewAccountHandle(fundingAccountID, nearClient, keys)
	}
	return &Session{
		Network:         network,
		ChainID:         status.ChainID,
		Client:          nearClient,
		Keys:            keys,
		ContractAccount: contract,
		SendingAccount:  sender,
	}, nil
}

// Close wipes any signing keys loaded during the session
func (s *Session) Close() {
	s.ContractAccount.forget()
	s.SendingAccount.forget()
}

// expectsChainID reports whether the node of a network must report the network id as chain id.
// Custom and local networks use arbitrary chain ids.
func expectsChainID(networkID string) bool {
	return networkID == "testnet" || networkID == "mainnet"
}

// AccountHandle signs calls for one account with a key loaded lazily from the store
type AccountHandle struct {
	id     string
	client *client.NearClient
	keys   *crypto.KeyStore

	mu  sync.Mutex
	key solana.PrivateKey
}

// NewAccountHandle binds an account id to an RPC client and a key store
func NewAccountHandle(accountID string, nearClient *client.NearClient, keys *crypto.KeyStore) *AccountHandle {
	return &AccountHandle{id: accountID, client: nearClient, keys: keys}
}

// ID returns the account id
func (a *AccountHandle) ID() string {
	return a.id
}

// FunctionCall signs and submits a single function call as this account
func (a *AccountHandle) FunctionCall(ctx context.Context, contractID, method string, args interface{}, gas uint64, deposit *uint256.Int) (*model.Outcome, error) {
	key, err := a.signingKey()
	if err != nil {
		return nil, err
	}
	return a.client.FunctionCall(ctx, a.id, key, contractID, method, args, gas, deposit)
}

// CallView runs a read-only contract method; no key is needed
func (a *AccountHandle) CallView(ctx context.Context, contractID, method string, args interface{}) ([]byte, error) {
	return a.client.CallView(ctx, contractID, method, args)
}

func (a *AccountHandle) signingKey() (solana.PrivateKey, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.key != nil {
		return a.key, nil
	}
	key, err := a.keys.GetKey(a.id)
	if err != nil {
		return nil, fmt.Errorf("failed to load key for %s: %w", a.id, err)
	}
	a.key = key
	return key, nil
}

func (a *AccountHandle) forget() {
	a.mu.Lock()
	defer a.mu.Unlock()
	clear(a.key)
	a.key = nil
}
