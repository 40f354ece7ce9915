package issue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/amount"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/chain"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/events"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/params"
	"github.com/threshold-bridge/tbtc-core/pkg/bridge/vault"
)

type oneToOneOracle struct{}

func (oneToOneOracle) BTCToDOT(btc amount.Amount) (amount.Amount, error) { return btc, nil }

type fakeCollateral struct {
	locked  map[chain.AccountID]amount.Amount
	slashes []struct{ src, dst chain.AccountID }
}

func newFakeCollateral() *fakeCollateral {
	return &fakeCollateral{locked: make(map[chain.AccountID]amount.Amount)}
}

func (f *fakeCollateral) Lock(acct chain.AccountID, amt amount.Amount) error {
	cur := f.locked[acct]
	sum, err := cur.Add(amt)
	if err != nil {
		return err
	}
	f.locked[acct] = sum
	return nil
}

func (f *fakeCollateral) Release(acct chain.AccountID, amt amount.Amount) error {
	cur := f.locked[acct]
	rem, err := cur.Sub(amt)
	if err != nil {
		return err
	}
	f.locked[acct] = rem
	return nil
}

func (f *fakeCollateral) Slash(src, dst chain.AccountID, amt amount.Amount) error {
	f.slashes = append(f.slashes, struct{ src, dst chain.AccountID }{src, dst})
	return nil
}

func (f *fakeCollateral) Transfer(chain.AccountID, chain.AccountID, amount.Amount) error { return nil }

func (f *fakeCollateral) GetBalance(acct chain.AccountID) (amount.Amount, error) {
	return f.locked[acct], nil
}

type fakeTreasury struct {
	minted map[chain.AccountID]amount.Amount
}

func newFakeTreasury() *fakeTreasury {
	return &fakeTreasury{minted: make(map[chain.AccountID]amount.Amount)}
}

func (f *fakeTreasury) Mint(acct chain.AccountID, amt amount.Amount) error {
	cur := f.minted[acct]
	sum, err := cur.Add(amt)
	if err != nil {
		return err
	}
	f.minted[acct] = sum
	return nil
}
func (f *fakeTreasury) Burn(acct chain.AccountID, amt amount.Amount) error {
	cur := f.minted[acct]
	rem, err := cur.Sub(amt)
	if err != nil {
		return err
	}
	f.minted[acct] = rem
	return nil
}
func (f *fakeTreasury) Lock(chain.AccountID, amount.Amount) error   { return nil }
func (f *fakeTreasury) Unlock(chain.AccountID, amount.Amount) error { return nil }
func (f *fakeTreasury) GetBalance(acct chain.AccountID) (amount.Amount, error) {
	return f.minted[acct], nil
}
func (f *fakeTreasury) GetTotalSupply() (amount.Amount, error) { return amount.Zero, nil }

type fakeSecurity struct {
	running bool
	next    byte
}

func (s *fakeSecurity) EnsureParachainRunning() error {
	if !s.running {
		return ErrParachainNotRunning
	}
	return nil
}
func (s *fakeSecurity) GetSecureID(requester chain.AccountID) (chain.RequestID, error) {
	s.next++
	var id chain.RequestID
	id[0] = s.next
	return id, nil
}

type fakeFees struct {
	issueFee, issueGriefing amount.Ratio
	pool                    chain.AccountID
}

func (f *fakeFees) IssueFeeRate() (amount.Ratio, error)         { return f.issueFee, nil }
func (f *fakeFees) IssueGriefingRate() (amount.Ratio, error)    { return f.issueGriefing, nil }
func (f *fakeFees) RedeemFeeRate() (amount.Ratio, error)        { return amount.RatioFromPermille(0), nil }
func (f *fakeFees) PremiumRedeemFeeRate() (amount.Ratio, error) { return amount.RatioFromPermille(0), nil }
func (f *fakeFees) AuctionRedeemFeeRate() (amount.Ratio, error) { return amount.RatioFromPermille(0), nil }
func (f *fakeFees) PunishmentFeeRate() (amount.Ratio, error)    { return amount.RatioFromPermille(0), nil }
func (f *fakeFees) ReplaceGriefingRate() (amount.Ratio, error)  { return amount.RatioFromPermille(0), nil }
func (f *fakeFees) FeePoolAccount() chain.AccountID             { return f.pool }

type fakeSLA struct {
	updates []chain.SLAUpdate
}

func (s *fakeSLA) EventUpdateVaultSLA(v chain.AccountID, u chain.SLAUpdate) error {
	s.updates = append(s.updates, u)
	return nil
}

type fakeRefund struct {
	requested bool
}

func (r *fakeRefund) RequestRefund(amount.Amount, chain.AccountID, chain.AccountID, chain.BtcAddress, chain.RequestID) error {
	r.requested = true
	return nil
}

type fakeVerifier struct {
	amountPaid amount.Amount
	refundAddr chain.BtcAddress
}

func (fakeVerifier) VerifyInclusion(chain.TxID, []byte) error { return nil }
func (f fakeVerifier) ValidateTransaction(rawTx []byte, minAmount amount.Amount, expectedAddr chain.BtcAddress, opReturn []byte) (chain.BtcAddress, amount.Amount, error) {
	return f.refundAddr, f.amountPaid, nil
}

type fakeDeriver struct{}

func (fakeDeriver) Derive(pubKey chain.BtcPublicKey, requestID chain.RequestID) (chain.BtcAddress, error) {
	return chain.BtcAddress(requestID[:]), nil
}

func account(b byte) chain.AccountID {
	var a chain.AccountID
	a[0] = b
	return a
}

func testParams(t *testing.T) *params.Parameters {
	t.Helper()
	p, err := params.New(
		params.Thresholds{
			Secure:      amount.RatioFromPermille(1500),
			Premium:     amount.RatioFromPermille(1350),
			Auction:     amount.RatioFromPermille(1200),
			Liquidation: amount.RatioFromPermille(1100),
		},
		params.Periods{Issue: 10, Redeem: 10, Replace: 10, PunishmentDelay: 100},
		amount.New(1000),
	)
	require.NoError(t, err)
	return p
}

type fixture struct {
	engine     *Engine
	registry   *vault.Registry
	collateral *fakeCollateral
	treasury   *fakeTreasury
	security   *fakeSecurity
	fees       *fakeFees
	sla        *fakeSLA
	refund     *fakeRefund
	verifier   *fakeVerifier
	recorder   *events.Recorder
	vaultID    chain.AccountID
}

func newFixture(t *testing.T, issueFeePermille, griefingPermille int64) *fixture {
	t.Helper()
	rec := events.NewRecorder()
	reg := vault.NewRegistry(testParams(t), oneToOneOracle{}, newFakeCollateral(), rec)

	v1 := account(1)
	_, err := reg.RegisterVault(v1, chain.BtcPublicKey("vault-1-pubkey"))
	require.NoError(t, err)
	// seed ample backing collateral so collateralization gates never bind.
	require.NoError(t, reg.SlashCollateral(vault.FreeBalance(account(99)), vault.Backing(v1), amount.New(1_000_000)))

	col := newFakeCollateral()
	treas := newFakeTreasury()
	sec := &fakeSecurity{running: true}
	fees := &fakeFees{
		issueFee:      amount.RatioFromPermille(issueFeePermille),
		issueGriefing: amount.RatioFromPermille(griefingPermille),
		pool:          account(250),
	}
	sla := &fakeSLA{}
	ref := &fakeRefund{}
	ver := &fakeVerifier{}

	eng := NewEngine(Dependencies{
		Registry:   reg,
		Verifier:   ver,
		Collateral: col,
		Treasury:   treas,
		Security:   sec,
		Fees:       fees,
		SLA:        sla,
		Refund:     ref,
		Deriver:    fakeDeriver{},
		Sink:       rec,
		Params:     testParams(t),
	})

	return &fixture{
		engine: eng, registry: reg, collateral: col, treasury: treas,
		security: sec, fees: fees, sla: sla, refund: ref, verifier: ver,
		recorder: rec, vaultID: v1,
	}
}

func TestRequestIssue_HappyPath(t *testing.T) {
	fx := newFixture(t, 0, 0)
	requester := account(2)

	issueID, err := fx.engine.RequestIssue(requester, amount.New(100_000), fx.vaultID, amount.New(10_000), 5)
	require.NoError(t, err)

	req, err := fx.engine.getOpenRequest(issueID)
	require.NoError(t, err)
	assert.Equal(t, "100000", req.Amount.String())
	assert.True(t, req.BtcAddress != nil)

	v, err := fx.registry.GetVault(fx.vaultID)
	require.NoError(t, err)
	assert.Equal(t, "100000", v.ToBeIssued.String())

	require.Len(t, fx.recorder.Events, 1)
}

func TestRequestIssue_InsufficientGriefingCollateral(t *testing.T) {
	fx := newFixture(t, 0, 100) // 10% griefing rate
	requester := account(2)

	_, err := fx.engine.RequestIssue(requester, amount.New(100_000), fx.vaultID, amount.New(1), 5)
	assert.ErrorIs(t, err, ErrInsufficientCollateral)
}

func TestExecuteIssue_ExactPayment(t *testing.T) {
	fx := newFixture(t, 50, 0) // 5% fee
	requester := account(2)

	issueID, err := fx.engine.RequestIssue(requester, amount.New(100_000), fx.vaultID, amount.New(10_000), 5)
	require.NoError(t, err)

	req, err := fx.engine.getOpenRequest(issueID)
	require.NoError(t, err)
	total, err := req.TotalBTC()
	require.NoError(t, err)

	fx.verifier.amountPaid = total
	fx.verifier.refundAddr = chain.BtcAddress("refund-addr")

	require.NoError(t, fx.engine.ExecuteIssue(requester, issueID, chain.TxID{}, nil, nil, 6))

	v, err := fx.registry.GetVault(fx.vaultID)
	require.NoError(t, err)
	assert.Equal(t, total.String(), v.Issued.String())
	assert.True(t, v.ToBeIssued.IsZero())

	assert.Equal(t, req.Amount.String(), fx.treasury.minted[requester].String())
	assert.Equal(t, req.Fee.String(), fx.treasury.minted[fx.fees.pool].String())
	require.Len(t, fx.sla.updates, 1)
	assert.Equal(t, chain.ExecutedIssue, fx.sla.updates[0].Event)

	finalReq, err := fx.engine.getOpenRequest(issueID)
	assert.ErrorIs(t, err, ErrIssueCompleted)
	_ = finalReq
}

func TestExecuteIssue_OverpayAbsorbedByVault(t *testing.T) {
	fx := newFixture(t, 50, 0) // 5% fee
	requester := account(2)

	issueID, err := fx.engine.RequestIssue(requester, amount.New(100_000), fx.vaultID, amount.New(10_000), 5)
	require.NoError(t, err)

	req, err := fx.engine.getOpenRequest(issueID)
	require.NoError(t, err)
	total, err := req.TotalBTC()
	require.NoError(t, err)

	overpaid, err := total.Add(amount.New(50_000))
	require.NoError(t, err)
	fx.verifier.amountPaid = overpaid
	fx.verifier.refundAddr = chain.BtcAddress("refund-addr")

	require.NoError(t, fx.engine.ExecuteIssue(requester, issueID, chain.TxID{}, nil, nil, 6))

	v, err := fx.registry.GetVault(fx.vaultID)
	require.NoError(t, err)
	assert.Equal(t, overpaid.String(), v.Issued.String())
	assert.False(t, fx.refund.requested, "vault had headroom, so the refund module must not be invoked")
}

func TestExecuteIssue_OverpayRoutedToRefund(t *testing.T) {
	fx := newFixture(t, 50, 0)
	requester := account(2)

	issueID, err := fx.engine.RequestIssue(requester, amount.New(100_000), fx.vaultID, amount.New(10_000), 5)
	require.NoError(t, err)

	req, err := fx.engine.getOpenRequest(issueID)
	require.NoError(t, err)
	total, err := req.TotalBTC()
	require.NoError(t, err)

	// drain the vault's remaining collateral headroom so the surplus can't
	// be absorbed and must be routed to the refund module.
	v, err := fx.registry.GetVault(fx.vaultID)
	require.NoError(t, err)
	require.NoError(t, fx.registry.SlashCollateral(vault.Backing(fx.vaultID), vault.FreeBalance(account(42)), v.BackingCollateral))

	overpaid, err := total.Add(amount.New(50_000))
	require.NoError(t, err)
	fx.verifier.amountPaid = overpaid
	fx.verifier.refundAddr = chain.BtcAddress("refund-addr")

	require.NoError(t, fx.engine.ExecuteIssue(requester, issueID, chain.TxID{}, nil, nil, 6))
	assert.True(t, fx.refund.requested)
}

func TestCancelIssue_BeforeExpiry(t *testing.T) {
	fx := newFixture(t, 0, 0)
	requester := account(2)

	issueID, err := fx.engine.RequestIssue(requester, amount.New(100_000), fx.vaultID, amount.New(10_000), 5)
	require.NoError(t, err)

	err = fx.engine.CancelIssue(issueID, 6)
	assert.ErrorIs(t, err, ErrTimeNotExpired)
}

func TestCancelIssue_AfterExpirySlashesGriefing(t *testing.T) {
	fx := newFixture(t, 0, 0)
	requester := account(2)

	issueID, err := fx.engine.RequestIssue(requester, amount.New(100_000), fx.vaultID, amount.New(10_000), 5)
	require.NoError(t, err)

	require.NoError(t, fx.engine.CancelIssue(issueID, 20))

	v, err := fx.registry.GetVault(fx.vaultID)
	require.NoError(t, err)
	assert.True(t, v.ToBeIssued.IsZero())
	// the requester's 10_000 griefing lands in the vault's backing bucket,
	// on top of the 1_000_000 seeded by the fixture.
	assert.Equal(t, "1010000", v.BackingCollateral.String())

	_, err = fx.engine.getOpenRequest(issueID)
	assert.ErrorIs(t, err, ErrIssueCancelled)
}

func TestRequestThenForRequesterForVault(t *testing.T) {
	fx := newFixture(t, 0, 0)
	requester := account(2)

	id1, err := fx.engine.RequestIssue(requester, amount.New(1_000), fx.vaultID, amount.New(100), 1)
	require.NoError(t, err)

	byRequester := fx.engine.ForRequester(requester)
	assert.Len(t, byRequester, 1)
	assert.Contains(t, byRequester, id1)

	byVault := fx.engine.ForVault(fx.vaultID)
	assert.Len(t, byVault, 1)
	assert.Contains(t, byVault, id1)
}
