package linkdrop

import (
	"context"
	"errors"
	"fmt"

	"github.com/AlexZinkM/near-linkdrop/internal/client"
	"github.com/AlexZinkM/near-linkdrop/internal/common"
	"github.com/AlexZinkM/near-linkdrop/internal/config"
	"github.com/AlexZinkM/near-linkdrop/internal/crypto"
	"github.com/AlexZinkM/near-linkdrop/internal/model"

	"github.com/holiman/uint256"
	"go.uber.org/zap"
)

const (
	methodInit          = "new_default_meta"
	methodSend          = "send"
	methodGetKeyBalance = "get_key_balance"

	// MinimumDeposit is the smallest amount the contract accepts for a new key:
	// storage 0.001 + key allowance 0.02 + new account 0.00182 NEAR
	MinimumDeposit = "0.02282"
)

var (
	// ErrDepositBelowMinimum is returned for amounts the contract would reject for a new key
	ErrDepositBelowMinimum = errors.New("deposit is below the linkdrop minimum of " + MinimumDeposit + " NEAR")

	// ErrKeyNotFunded is returned when the contract holds no balance for a key after send
	ErrKeyNotFunded = errors.New("contract holds no balance for the key")

	// ErrKeyMismatch is returned when the funded key is not the one in the claim link
	ErrKeyMismatch = errors.New("funded public key does not match the claim link")
)

// State is the position of an issuance in its pipeline
type State int

const (
	StateStart State = iota
	StateContractInitAttempted
	StateKeyGenerated
	StateFundingAttempted
	StateLinkDerived
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateContractInitAttempted:
		return "contract_init_attempted"
	case StateKeyGenerated:
		return "key_generated"
	case StateFundingAttempted:
		return "funding_attempted"
	case StateLinkDerived:
		return "link_derived"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// StageError is returned when a pipeline stage fails; the issuance ends in StateFailed
type StageError struct {
	Stage State // the state the failed stage would have reached
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage at which err stopped an issuance
func FailedStage(err error) (State, bool) {
	var target *StageError
	if errors.As(err, &target) {
		return target.Stage, true
	}
	return StateStart, false
}

// Options control one issuer
type Options struct {
	ContractID       string
	WalletURL        string
	Amount           string // NEAR
	Gas              uint64
	OnFundingFailure config.FundingFailurePolicy
	SkipInit         bool
	VerifyFunding    bool
}

// OptionsFromConfig takes the issuer options from the loaded configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ContractID:       cfg.ContractID,
		WalletURL:        cfg.WalletURL,
		Amount:           cfg.Amount,
		Gas:              cfg.Gas,
		OnFundingFailure: cfg.OnFundingFailure,
		SkipInit:         cfg.SkipInit,
		VerifyFunding:    cfg.VerifyFunding,
	}
}

// Deposit converts Amount to yoctoNEAR and checks it against MinimumDeposit
func (o Options) Deposit() (*uint256.Int, error) {
	deposit, err := common.NEARToYocto(o.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", o.Amount, err)
	}
	cmp, err := common.CompareNEARAmounts(o.Amount, MinimumDeposit)
	if err != nil {
		return nil, err
	}
	if cmp < 0 {
		return nil, fmt.Errorf("%w: got %s NEAR", ErrDepositBelowMinimum, o.Amount)
	}
	return deposit, nil
}

// Validate checks the options without touching the network
func (o Options) Validate() error {
	if !crypto.ValidAccountID(o.ContractID) {
		return fmt.Errorf("invalid contract id %q", o.ContractID)
	}
	if o.WalletURL == "" {
		return errors.New("wallet URL is empty")
	}
	if o.Gas == 0 {
		return errors.New("gas must be positive")
	}
	switch o.OnFundingFailure {
	case config.FundingFailureAbort, config.FundingFailureFlag:
	default:
		return fmt.Errorf("unknown funding failure policy %q", o.OnFundingFailure)
	}
	_, err := o.Deposit()
	return err
}

// Issuer runs the linkdrop pipeline:
// init contract, generate key, fund key, derive claim link.
type Issuer struct {
	contract Account
	sender   Account
	opts     Options
	deposit  *uint256.Int
	logger   *zap.Logger

	generateKey func() (model.KeyPair, error)
}

// NewIssuer creates an issuer. contract signs the initialization and sender
// funds every key.
func NewIssuer(contract, sender Account, opts Options, logger *zap.Logger) (*Issuer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	deposit, err := opts.Deposit()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Issuer{
		contract:    contract,
		sender:      sender,
		opts:        opts,
		deposit:     deposit,
		logger:      logger,
		generateKey: newKeyPair,
	}, nil
}

func newKeyPair() (model.KeyPair, error) {
	kp, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return model.KeyPair{}, err
	}
	clear(priv)
	return kp, nil
}

// issuance carries the data of one run between stages
type issuance struct {
	state   State
	keys    model.KeyPair
	sentKey string
	result  *model.Linkdrop
}

type stage struct {
	reaches State
	run     func(ctx context.Context, r *issuance) error
}

// Issue runs the pipeline once. Every call generates a new key.
// Under the abort policy any funding failure is returned as an error and no
// link is produced; under the flag policy the link comes back with Funded unset.
func (i *Issuer) Issue(ctx context.Context) (*model.Linkdrop, error) {
	r := &issuance{
		state:  StateStart,
		result: &model.Linkdrop{ContractID: i.opts.ContractID},
	}
	stages := []stage{
		{StateContractInitAttempted, i.initContract},
		{StateKeyGenerated, i.newKey},
		{StateFundingAttempted, i.fund},
		{StateLinkDerived, i.deriveLink},
	}

	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, i.fail(r, s.reaches, err)
		}
		if err := s.run(ctx, r); err != nil {
			return nil, i.fail(r, s.reaches, err)
		}
		i.advance(r, s.reaches)
	}
	i.advance(r, StateDone)
	r.result.State = r.state.String()
	return r.result, nil
}

func (i *Issuer) advance(r *issuance, next State) {
	i.logger.Debug("issuance state", zap.Stringer("from", r.state), zap.Stringer("to", next))
	r.state = next
}

func (i *Issuer) fail(r *issuance, at State, err error) error {
	i.advance(r, StateFailed)
	return &StageError{Stage: at, Err: err}
}

func (i *Issuer) initContract(ctx context.Context, r *issuance) error {
	if i.opts.SkipInit {
		i.logger.Info("skipping contract initialization", zap.String("contract", i.opts.ContractID))
		return nil
	}

	i.logger.Info("initializing contract", zap.String("contract", i.opts.ContractID))
	args := map[string]string{"owner_id": i.opts.ContractID}
	outcome, err := i.contract.FunctionCall(ctx, i.opts.ContractID, methodInit, args, i.opts.Gas, nil)
	if outcome != nil {
		r.result.InitTxHash = outcome.TxHash
	}
	if err != nil {
		if reason, ok := client.ReasonOf(err); ok && reason == client.ReasonAlreadyInitialized {
			i.logger.Info("contract already initialized", zap.String("contract", i.opts.ContractID))
			return nil
		}
		return fmt.Errorf("failed to initialize contract: %w", err)
	}
	return nil
}

func (i *Issuer) newKey(_ context.Context, r *issuance) error {
	kp, err := i.generateKey()
	if err != nil {
		return err
	}
	r.keys = kp
	r.result.PublicKey = kp.PublicKey
	i.logger.Info("generated key", zap.String("pubKey", kp.PublicKey))
	return nil
}

func (i *Issuer) fund(ctx context.Context, r *issuance) error {
	i.logger.Info("sending funds",
		zap.String("from", i.sender.ID()),
		zap.String("amount", i.opts.Amount),
		zap.String("pubKey", r.keys.PublicKey),
	)

	r.sentKey = r.keys.PublicKey
	args := map[string]string{"public_key": r.sentKey}
	outcome, err := i.sender.FunctionCall(ctx, i.opts.ContractID, methodSend, args, i.opts.Gas, i.deposit)
	if outcome != nil {
		r.result.FundingTxHash = outcome.TxHash
	}
	if err != nil {
		return i.fundingFailed(r, fmt.Errorf("failed to fund key: %w", err))
	}

	if i.opts.VerifyFunding {
		balance, err := fetchKeyBalance(ctx, i.sender, i.opts.ContractID, r.sentKey)
		if err != nil {
			return i.fundingFailed(r, fmt.Errorf("failed to verify funding: %w", err))
		}
		if balance.IsZero() {
			return i.fundingFailed(r, ErrKeyNotFunded)
		}
		i.logger.Debug("funding verified", zap.String("balance", common.YoctoToNEAR(balance)))
	}

	r.result.Funded = true
	return nil
}

// fundingFailed applies the funding failure policy
func (i *Issuer) fundingFailed(r *issuance, err error) error {
	if i.opts.OnFundingFailure != config.FundingFailureFlag {
		return err
	}
	i.logger.Warn("funding failed, link will be marked unfunded", zap.Error(err))
	r.result.Funded = false
	r.result.FundingFailure = err.Error()
	return nil
}

func (i *Issuer) deriveLink(_ context.Context, r *issuance) error {
	derived, err := crypto.PublicKeyOf(r.keys.PrivateKey)
	if err != nil {
		return err
	}
	if derived != r.sentKey {
		return fmt.Errorf("%w: sent %s, link carries %s", ErrKeyMismatch, r.sentKey, derived)
	}
	r.result.ClaimURL = ClaimURL(i.opts.WalletURL, i.opts.ContractID, r.keys.PrivateKey)
	return nil
}
