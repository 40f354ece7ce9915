package redeem

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
	slashes []struct{ src, dst chain.AccountID }
}

func (f *fakeCollateral) Lock(chain.AccountID, amount.Amount) error    { return nil }
func (f *fakeCollateral) Release(chain.AccountID, amount.Amount) error { return nil }
func (f *fakeCollateral) Slash(src, dst chain.AccountID, amt amount.Amount) error {
	f.slashes = append(f.slashes, struct{ src, dst chain.AccountID }{src, dst})
	return nil
}
func (f *fakeCollateral) Transfer(chain.AccountID, chain.AccountID, amount.Amount) error { return nil }
func (f *fakeCollateral) GetBalance(chain.AccountID) (amount.Amount, error)              { return amount.Zero, nil }

type fakeTreasury struct {
	balances map[chain.AccountID]amount.Amount
}

func newFakeTreasury() *fakeTreasury {
	return &fakeTreasury{balances: make(map[chain.AccountID]amount.Amount)}
}
func (f *fakeTreasury) Mint(acct chain.AccountID, amt amount.Amount) error {
	sum, err := f.balances[acct].Add(amt)
	if err != nil {
		return err
	}
	f.balances[acct] = sum
	return nil
}
func (f *fakeTreasury) Burn(acct chain.AccountID, amt amount.Amount) error {
	rem, err := f.balances[acct].Sub(amt)
	if err != nil {
		return err
	}
	f.balances[acct] = rem
	return nil
}
func (f *fakeTreasury) Lock(chain.AccountID, amount.Amount) error   { return nil }
func (f *fakeTreasury) Unlock(chain.AccountID, amount.Amount) error { return nil }
func (f *fakeTreasury) GetBalance(acct chain.AccountID) (amount.Amount, error) {
	return f.balances[acct], nil
}
func (f *fakeTreasury) GetTotalSupply() (amount.Amount, error) { return amount.Zero, nil }

type fakeSecurity struct{ next byte }

func (s *fakeSecurity) EnsureParachainRunning() error { return nil }
func (s *fakeSecurity) GetSecureID(chain.AccountID) (chain.RequestID, error) {
	s.next++
	var id chain.RequestID
	id[0] = s.next
	return id, nil
}

type fakeFees struct {
	redeemFee, premiumFee, punishmentFee amount.Ratio
	pool                                 chain.AccountID
}

func (f *fakeFees) IssueFeeRate() (amount.Ratio, error)      { return amount.RatioFromPermille(0), nil }
func (f *fakeFees) IssueGriefingRate() (amount.Ratio, error) { return amount.RatioFromPermille(0), nil }
func (f *fakeFees) RedeemFeeRate() (amount.Ratio, error)     { return f.redeemFee, nil }
func (f *fakeFees) PremiumRedeemFeeRate() (amount.Ratio, error) {
	return f.premiumFee, nil
}
func (f *fakeFees) AuctionRedeemFeeRate() (amount.Ratio, error) {
	return amount.RatioFromPermille(0), nil
}
func (f *fakeFees) PunishmentFeeRate() (amount.Ratio, error)   { return f.punishmentFee, nil }
func (f *fakeFees) ReplaceGriefingRate() (amount.Ratio, error) { return amount.RatioFromPermille(0), nil }
func (f *fakeFees) FeePoolAccount() chain.AccountID            { return f.pool }

type fakeSLA struct {
	updates []chain.SLAUpdate
}

func (s *fakeSLA) EventUpdateVaultSLA(v chain.AccountID, u chain.SLAUpdate) error {
	s.updates = append(s.updates, u)
	return nil
}

type fakeVerifier struct{}

func (fakeVerifier) VerifyInclusion(chain.TxID, []byte) error { return nil }
func (fakeVerifier) ValidateTransaction(rawTx []byte, minAmount amount.Amount, expectedAddr chain.BtcAddress, opReturn []byte) (chain.BtcAddress, amount.Amount, error) {
	return nil, minAmount, nil
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
	engine   *Engine
	registry *vault.Registry
	treasury *fakeTreasury
	fees     *fakeFees
	sla      *fakeSLA
	recorder *events.Recorder
	vaultID  chain.AccountID
}

func newFixture(t *testing.T, redeemFeePermille, premiumPermille, punishmentPermille int64) *fixture {
	t.Helper()
	rec := events.NewRecorder()
	col := &fakeCollateral{}
	reg := vault.NewRegistry(testParams(t), oneToOneOracle{}, col, rec)

	v1 := account(1)
	_, err := reg.RegisterVault(v1, chain.BtcPublicKey("vault-1-pubkey"))
	require.NoError(t, err)
	require.NoError(t, reg.SlashCollateral(vault.FreeBalance(account(99)), vault.Backing(v1), amount.New(2000)))
	require.NoError(t, reg.TryIncreaseToBeIssued(v1, amount.New(1000)))
	require.NoError(t, reg.IssueTokens(v1, amount.New(1000)))

	treas := newFakeTreasury()
	fees := &fakeFees{
		redeemFee:      amount.RatioFromPermille(redeemFeePermille),
		premiumFee:     amount.RatioFromPermille(premiumPermille),
		punishmentFee:  amount.RatioFromPermille(punishmentPermille),
		pool:           account(250),
	}
	sla := &fakeSLA{}

	eng := NewEngine(Dependencies{
		Registry: reg,
		Verifier: fakeVerifier{},
		Treasury: treas,
		Security: &fakeSecurity{},
		Fees:     fees,
		SLA:      sla,
		Sink:     rec,
		Params:   testParams(t),
	})

	return &fixture{engine: eng, registry: reg, treasury: treas, fees: fees, sla: sla, recorder: rec, vaultID: v1}
}

func TestRequestRedeem_NoPremiumWhenAboveThreshold(t *testing.T) {
	fx := newFixture(t, 50, 100, 0) // 5% fee, 10% premium if triggered
	redeemer := account(2)

	redeemID, err := fx.engine.RequestRedeem(redeemer, amount.New(100), chain.BtcAddress("user-addr"), fx.vaultID, 1)
	require.NoError(t, err)

	req, err := fx.engine.getOpenRequest(redeemID)
	require.NoError(t, err)
	assert.True(t, req.Premium.IsZero(), "vault has ample collateral, premium must not attach")
	assert.Equal(t, "5", req.Fee.String())
}

func TestRequestRedeem_PremiumWhenBelowThreshold(t *testing.T) {
	fx := newFixture(t, 50, 100, 0)
	// drain the vault's backing collateral from 2000 down to 1200. The premium
	// check runs after the request's 95 is added to to_be_redeemed, so the
	// outstanding is 1000-95 = 905 and the 1.35x premium threshold needs 1221;
	// 1200 is below it.
	require.NoError(t, fx.registry.SlashCollateral(vault.Backing(fx.vaultID), vault.FreeBalance(account(98)), amount.New(800)))

	redeemer := account(2)
	redeemID, err := fx.engine.RequestRedeem(redeemer, amount.New(100), chain.BtcAddress("user-addr"), fx.vaultID, 1)
	require.NoError(t, err)

	req, err := fx.engine.getOpenRequest(redeemID)
	require.NoError(t, err)
	// fee = 100*0.05 = 5; redeemValue = 95; premium = 95*0.10 = 9 (floored).
	assert.Equal(t, "9", req.Premium.String())
}

func TestExecuteRedeem_HappyPath(t *testing.T) {
	fx := newFixture(t, 50, 0, 0)
	redeemer := account(2)
	require.NoError(t, fx.treasury.Mint(redeemer, amount.New(1000)))

	redeemID, err := fx.engine.RequestRedeem(redeemer, amount.New(100), chain.BtcAddress("user-addr"), fx.vaultID, 1)
	require.NoError(t, err)

	require.NoError(t, fx.engine.ExecuteRedeem(redeemID, chain.TxID{}, nil, nil, 2))

	v, err := fx.registry.GetVault(fx.vaultID)
	require.NoError(t, err)
	assert.Equal(t, "905", v.Issued.String()) // 1000 - (100-5)
	assert.True(t, v.ToBeRedeemed.IsZero())

	assert.Equal(t, "900", fx.treasury.balances[redeemer].String()) // 1000 - 100 burned
	assert.Equal(t, "5", fx.treasury.balances[fx.fees.pool].String())
	require.Len(t, fx.sla.updates, 1)
	assert.Equal(t, chain.ExecutedRedeem, fx.sla.updates[0].Event)

	_, err = fx.engine.getOpenRequest(redeemID)
	assert.ErrorIs(t, err, ErrRedeemCompleted)
}

func TestCancelRedeem_Reimburse(t *testing.T) {
	fx := newFixture(t, 50, 0, 200) // 5% fee, 20% punishment
	redeemer := account(2)
	require.NoError(t, fx.treasury.Mint(redeemer, amount.New(1000)))

	redeemID, err := fx.engine.RequestRedeem(redeemer, amount.New(100), chain.BtcAddress("user-addr"), fx.vaultID, 1)
	require.NoError(t, err)

	require.NoError(t, fx.engine.CancelRedeem(redeemer, redeemID, true, 20))

	v, err := fx.registry.GetVault(fx.vaultID)
	require.NoError(t, err)
	assert.Equal(t, "905", v.Issued.String()) // decreased exactly as if redeemed
	assert.True(t, v.BannedUntil != nil)

	// -100 burned, +5 fee refunded -> net -95 off the initial 1000 mint.
	assert.Equal(t, "905", fx.treasury.balances[redeemer].String())
}

func TestCancelRedeem_NoReimburse(t *testing.T) {
	fx := newFixture(t, 50, 0, 200)
	redeemer := account(2)
	require.NoError(t, fx.treasury.Mint(redeemer, amount.New(1000)))

	redeemID, err := fx.engine.RequestRedeem(redeemer, amount.New(100), chain.BtcAddress("user-addr"), fx.vaultID, 1)
	require.NoError(t, err)

	require.NoError(t, fx.engine.CancelRedeem(redeemer, redeemID, false, 20))

	v, err := fx.registry.GetVault(fx.vaultID)
	require.NoError(t, err)
	assert.True(t, v.ToBeRedeemed.IsZero())
	assert.Equal(t, "1000", v.Issued.String(), "no-reimburse cancel must not touch issued")
}

func TestCancelRedeem_RequiresExpiry(t *testing.T) {
	fx := newFixture(t, 0, 0, 0)
	redeemer := account(2)

	redeemID, err := fx.engine.RequestRedeem(redeemer, amount.New(100), chain.BtcAddress("user-addr"), fx.vaultID, 1)
	require.NoError(t, err)

	err = fx.engine.CancelRedeem(redeemer, redeemID, false, 2)
	assert.ErrorIs(t, err, ErrTimeNotExpired)
}

func TestCancelRedeem_RejectsNonOwner(t *testing.T) {
	fx := newFixture(t, 0, 0, 0)
	redeemer := account(2)
	other := account(3)

	redeemID, err := fx.engine.RequestRedeem(redeemer, amount.New(100), chain.BtcAddress("user-addr"), fx.vaultID, 1)
	require.NoError(t, err)

	err = fx.engine.CancelRedeem(other, redeemID, false, 20)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestLiquidationRedeem_ProRataScenario(t *testing.T) {
	// pro-rata entitlement after a vault has already been liquidated.
	fx := newFixture(t, 0, 0, 0)
	slashed, err := fx.registry.LiquidateVault(fx.vaultID)
	require.NoError(t, err)
	assert.Equal(t, "2000", slashed.String()) // backing=2000, outstanding=issued=1000, denom=1000

	user := account(5)
	require.NoError(t, fx.treasury.Mint(user, amount.New(1000)))

	err = fx.engine.LiquidationRedeem(user, amount.New(325))
	require.NoError(t, err)

	assert.Equal(t, "675", fx.treasury.balances[user].String())

	lv := fx.registry.LiquidationVault()
	assert.Equal(t, "675", lv.Issued.String())
}
