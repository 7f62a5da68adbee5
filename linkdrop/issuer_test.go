package linkdrop

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/AlexZinkM/near-linkdrop/internal/client"
	"github.com/AlexZinkM/near-linkdrop/internal/common"
	"github.com/AlexZinkM/near-linkdrop/internal/config"
	"github.com/AlexZinkM/near-linkdrop/internal/crypto"
	"github.com/AlexZinkM/near-linkdrop/internal/model"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testOptions() Options {
	return Options{
		ContractID:       testContractID,
		WalletURL:        testWalletURL,
		Amount:           "1",
		Gas:              common.DefaultGas,
		OnFundingFailure: config.FundingFailureAbort,
	}
}

func newTestIssuer(t *testing.T, session *Session, opts Options) (*Issuer, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	issuer, err := NewIssuer(session.ContractAccount, session.SendingAccount, opts, zap.New(core))
	require.NoError(t, err)
	return issuer, logs
}

// privateKeyOf extracts the private key from a claim URL
func privateKeyOf(t *testing.T, claimURL string) string {
	t.Helper()
	prefix := testWalletURL + "/linkdrop/" + testContractID + "/"
	require.True(t, strings.HasPrefix(claimURL, prefix), claimURL)
	return strings.TrimPrefix(claimURL, prefix)
}

func TestIssue(t *testing.T) {
	node, session := newTestSession(t)
	issuer, logs := newTestIssuer(t, session, testOptions())

	drop, err := issuer.Issue(context.Background())
	require.NoError(t, err)

	assert.True(t, drop.Funded)
	assert.Empty(t, drop.FundingFailure)
	assert.Equal(t, StateDone.String(), drop.State)
	assert.NotEmpty(t, drop.InitTxHash)
	assert.NotEmpty(t, drop.FundingTxHash)

	calls := node.Calls()
	require.Len(t, calls, 2)

	initCall := calls[0]
	assert.Equal(t, testContractID, initCall.Signer)
	assert.Equal(t, testContractID, initCall.Receiver)
	assert.Equal(t, "new_default_meta", initCall.Method)
	assert.Equal(t, map[string]interface{}{"owner_id": testContractID}, initCall.Args)
	assert.Equal(t, uint64(300000000000000), initCall.Gas)
	assert.True(t, initCall.Deposit.IsZero())

	sendCall := calls[1]
	assert.Equal(t, testFunderID, sendCall.Signer)
	assert.Equal(t, testContractID, sendCall.Receiver)
	assert.Equal(t, "send", sendCall.Method)
	assert.Equal(t, uint64(300000000000000), sendCall.Gas)
	assert.Equal(t, "1000000000000000000000000", sendCall.Deposit.Dec())
	assert.Equal(t, drop.PublicKey, sendCall.Args["public_key"])

	// the key registered on chain is the one derived from the link
	derived, err := crypto.PublicKeyOf(privateKeyOf(t, drop.ClaimURL))
	require.NoError(t, err)
	assert.Equal(t, sendCall.Args["public_key"], derived)

	_, funded := node.KeyBalance(drop.PublicKey)
	assert.True(t, funded)

	assert.Equal(t, 1, logs.FilterMessage("initializing contract").Len())
	assert.Equal(t, 1, logs.FilterMessage("sending funds").Len())
	generated := logs.FilterMessage("generated key").All()
	require.Len(t, generated, 1)
	assert.Equal(t, drop.PublicKey, generated[0].ContextMap()["pubKey"])
	for _, entry := range logs.All() {
		for _, v := range entry.ContextMap() {
			if s, ok := v.(string); ok {
				assert.NotContains(t, s, privateKeyOf(t, drop.ClaimURL), "private key must not be logged")
			}
		}
	}
}

func TestIssueProducesDistinctKeys(t *testing.T) {
	node, session := newTestSession(t)
	issuer, _ := newTestIssuer(t, session, testOptions())

	const runs = 5
	keys := make(map[string]bool)
	urls := make(map[string]bool)
	for i := 0; i < runs; i++ {
		drop, err := issuer.Issue(context.Background())
		require.NoError(t, err)
		keys[drop.PublicKey] = true
		urls[drop.ClaimURL] = true
	}
	assert.Len(t, keys, runs)
	assert.Len(t, urls, runs)
	for key := range keys {
		_, funded := node.KeyBalance(key)
		assert.True(t, funded, key)
	}
}

func TestIssueAbsorbsAlreadyInitialized(t *testing.T) {
	node, session := newTestSession(t)
	node.SetInitialized(testContractID)
	issuer, logs := newTestIssuer(t, session, testOptions())

	drop, err := issuer.Issue(context.Background())
	require.NoError(t, err)
	assert.True(t, drop.Funded)
	assert.NotEmpty(t, drop.InitTxHash)
	assert.Equal(t, 1, logs.FilterMessage("contract already initialized").Len())
}

func TestIssueTwiceAgainstSameContract(t *testing.T) {
	node, session := newTestSession(t)
	issuer, _ := newTestIssuer(t, session, testOptions())

	first, err := issuer.Issue(context.Background())
	require.NoError(t, err)
	second, err := issuer.Issue(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.ClaimURL, second.ClaimURL)
	for _, drop := range []*model.Linkdrop{first, second} {
		balance, ok := node.KeyBalance(drop.PublicKey)
		require.True(t, ok)
		assert.False(t, balance.IsZero())
	}

	methods := make([]string, 0, 4)
	for _, c := range node.Calls() {
		methods = append(methods, c.Method)
	}
	assert.Equal(t, []string{"new_default_meta", "send", "new_default_meta", "send"}, methods)
}

func TestIssueInitFailureAborts(t *testing.T) {
	node, session := newTestSession(t)
	node.FailInit("Smart contract ran out of memory")
	issuer, _ := newTestIssuer(t, session, testOptions())

	drop, err := issuer.Issue(context.Background())
	require.Error(t, err)
	assert.Nil(t, drop)

	stage, ok := FailedStage(err)
	require.True(t, ok)
	assert.Equal(t, StateContractInitAttempted, stage)
	assert.True(t, client.IsContractCallError(err))

	for _, c := range node.Calls() {
		assert.NotEqual(t, "send", c.Method)
	}
}

func TestIssueSkipInit(t *testing.T) {
	node, session := newTestSession(t)
	node.SetInitialized(testContractID)
	opts := testOptions()
	opts.SkipInit = true
	issuer, logs := newTestIssuer(t, session, opts)

	drop, err := issuer.Issue(context.Background())
	require.NoError(t, err)
	assert.True(t, drop.Funded)
	assert.Empty(t, drop.InitTxHash)

	calls := node.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "send", calls[0].Method)
	assert.Equal(t, 0, logs.FilterMessage("initializing contract").Len())
}

func TestFundingFailureAbort(t *testing.T) {
	node, session := newTestSession(t)
	node.FailSend("Deposit < MIN_REQUIRED_INITIAL_DEPOSIT")
	issuer, _ := newTestIssuer(t, session, testOptions())

	drop, err := issuer.Issue(context.Background())
	require.Error(t, err)
	assert.Nil(t, drop)

	stage, _ := FailedStage(err)
	assert.Equal(t, StateFundingAttempted, stage)
	reason, ok := client.ReasonOf(err)
	require.True(t, ok)
	assert.Equal(t, client.ReasonInsufficientDeposit, reason)
}

func TestFundingFailureFlag(t *testing.T) {
	node, session := newTestSession(t)
	node.FailSend("Deposit < MIN_REQUIRED_INITIAL_DEPOSIT")
	opts := testOptions()
	opts.OnFundingFailure = config.FundingFailureFlag
	issuer, logs := newTestIssuer(t, session, opts)

	drop, err := issuer.Issue(context.Background())
	require.NoError(t, err)
	assert.False(t, drop.Funded)
	assert.Contains(t, drop.FundingFailure, "insufficient_deposit")
	assert.NotEmpty(t, drop.ClaimURL)
	assert.NotEmpty(t, drop.FundingTxHash)
	assert.Equal(t, StateDone.String(), drop.State)
	assert.Equal(t, 1, logs.FilterLevelExact(zapcore.WarnLevel).Len())

	_, funded := node.KeyBalance(drop.PublicKey)
	assert.False(t, funded)
}

// Emitting a link as if it were funded after send failed is a known-bad
// behavior: the recipient gets a link to an empty key. Neither policy may do it.
func TestFundingFailureIsNeverSilent(t *testing.T) {
	for _, policy := range []config.FundingFailurePolicy{config.FundingFailureAbort, config.FundingFailureFlag} {
		t.Run(string(policy), func(t *testing.T) {
			node, session := newTestSession(t)
			node.RejectTransactions(`{"TxExecutionError":{"InvalidTxError":{"NotEnoughBalance":{"signer_id":"funder.testnet","balance":"1","cost":"2"}}}}`)
			node.SetInitialized(testContractID)
			opts := testOptions()
			opts.SkipInit = true
			opts.OnFundingFailure = policy
			issuer, _ := newTestIssuer(t, session, opts)

			drop, err := issuer.Issue(context.Background())
			if err == nil {
				require.NotNil(t, drop)
				assert.False(t, drop.Funded, "unfunded link reported as funded")
				return
			}
			assert.Nil(t, drop)
			reason, _ := client.ReasonOf(err)
			assert.Equal(t, client.ReasonNotEnoughBalance, reason)
		})
	}
}

func TestVerifyFunding(t *testing.T) {
	_, session := newTestSession(t)
	opts := testOptions()
	opts.VerifyFunding = true
	issuer, logs := newTestIssuer(t, session, opts)

	drop, err := issuer.Issue(context.Background())
	require.NoError(t, err)
	assert.True(t, drop.Funded)
	assert.Equal(t, 1, logs.FilterMessage("funding verified").Len())
}

// fakeAccount accepts every call and reports a fixed key balance
type fakeAccount struct {
	id      string
	balance string
	calls   []string
}

func (a *fakeAccount) ID() string { return a.id }

func (a *fakeAccount) FunctionCall(_ context.Context, _, method string, _ interface{}, _ uint64, _ *uint256.Int) (*model.Outcome, error) {
	a.calls = append(a.calls, method)
	return &model.Outcome{TxHash: "tx-" + method, SuccessValue: []byte{}}, nil
}

func (a *fakeAccount) CallView(context.Context, string, string, interface{}) ([]byte, error) {
	return []byte(`"` + a.balance + `"`), nil
}

func TestVerifyFundingZeroBalance(t *testing.T) {
	account := &fakeAccount{id: testFunderID, balance: "0"}
	opts := testOptions()
	opts.VerifyFunding = true

	issuer, err := NewIssuer(account, account, opts, nil)
	require.NoError(t, err)
	_, err = issuer.Issue(context.Background())
	assert.ErrorIs(t, err, ErrKeyNotFunded)

	opts.OnFundingFailure = config.FundingFailureFlag
	issuer, err = NewIssuer(account, account, opts, nil)
	require.NoError(t, err)
	drop, err := issuer.Issue(context.Background())
	require.NoError(t, err)
	assert.False(t, drop.Funded)
	assert.Equal(t, "tx-send", drop.FundingTxHash)
}

func TestIssueRejectsMismatchedKey(t *testing.T) {
	account := &fakeAccount{id: testFunderID}
	issuer, err := NewIssuer(account, account, testOptions(), nil)
	require.NoError(t, err)

	other, _, err := crypto.GenerateKeyPair()
	require.NoError(t, err)
	issuer.generateKey = func() (model.KeyPair, error) {
		kp, err := newKeyPair()
		kp.PublicKey = other.PublicKey
		return kp, err
	}

	drop, err := issuer.Issue(context.Background())
	assert.Nil(t, drop)
	assert.ErrorIs(t, err, ErrKeyMismatch)
	stage, _ := FailedStage(err)
	assert.Equal(t, StateLinkDerived, stage)
}

func TestIssueCancelled(t *testing.T) {
	account := &fakeAccount{id: testFunderID}
	issuer, err := NewIssuer(account, account, testOptions(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = issuer.Issue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, account.calls)
}

func TestIssueKeyGenerationFailure(t *testing.T) {
	account := &fakeAccount{id: testFunderID}
	issuer, err := NewIssuer(account, account, testOptions(), nil)
	require.NoError(t, err)
	issuer.generateKey = func() (model.KeyPair, error) {
		return model.KeyPair{}, errors.New("entropy exhausted")
	}

	_, err = issuer.Issue(context.Background())
	stage, _ := FailedStage(err)
	assert.Equal(t, StateKeyGenerated, stage)
	assert.Equal(t, []string{"new_default_meta"}, account.calls)
}

func TestNewIssuerDepositMinimum(t *testing.T) {
	account := &fakeAccount{id: testFunderID}
	opts := testOptions()

	opts.Amount = "0.01"
	_, err := NewIssuer(account, account, opts, nil)
	assert.ErrorIs(t, err, ErrDepositBelowMinimum)
	assert.Empty(t, account.calls)

	opts.Amount = "0.022819999999999999999999"
	_, err = NewIssuer(account, account, opts, nil)
	assert.ErrorIs(t, err, ErrDepositBelowMinimum)

	opts.Amount = MinimumDeposit
	_, err = NewIssuer(account, account, opts, nil)
	assert.NoError(t, err)
}

func TestOptionsDepositRejectsExtraDecimals(t *testing.T) {
	opts := testOptions()
	opts.Amount = "1.0000000000000000000000009"

	_, err := opts.Deposit()
	assert.ErrorIs(t, err, common.ErrTooPrecise)
}

func TestOptionsValidate(t *testing.T) {
	bad := []func(*Options){
		func(o *Options) { o.ContractID = "" },
		func(o *Options) { o.WalletURL = "" },
		func(o *Options) { o.Gas = 0 },
		func(o *Options) { o.OnFundingFailure = "ignore" },
		func(o *Options) { o.Amount = "one" },
	}
	for i, mutate := range bad {
		opts := testOptions()
		mutate(&opts)
		assert.Error(t, opts.Validate(), i)
	}
	assert.NoError(t, testOptions().Validate())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "contract_init_attempted", StateContractInitAttempted.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "state(42)", State(42).String())
}
