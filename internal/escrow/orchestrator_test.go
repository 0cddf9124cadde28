package escrow

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"letspay/internal/faults"
	"letspay/internal/ledger"
	"letspay/internal/localstate"
	"letspay/internal/session"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	requiredChain = big.NewInt(545)
	host          = common.HexToAddress("0x1111111111111111111111111111111111111111")
	merchant      = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	friendOne     = common.HexToAddress("0x2222222222222222222222222222222222222222")
	friendTwo     = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

func connectedOrchestrator(t *testing.T, cli ledger.Client) (*Orchestrator, *session.Manager) {
	t.Helper()
	provider := session.NewStaticProvider(requiredChain, host)
	m := session.NewManager(session.ManagerConfig{
		Provider:      provider,
		RequiredChain: requiredChain,
		NewLedger: func(_ context.Context, _ common.Address, _ *bind.TransactOpts) (ledger.Client, error) {
			return cli, nil
		},
		Facts:  localstate.NewMemoryStore(),
		Logger: zerolog.Nop(),
	})
	_, err := m.Connect(context.Background())
	require.NoError(t, err)
	return NewOrchestrator(m, zerolog.Nop()), m
}

func TestCreateEscrowSubmitsExactSplit(t *testing.T) {
	cli := ledger.NewFakeClient(host)
	o, _ := connectedOrchestrator(t, cli)

	hash, err := o.CreateEscrow(context.Background(), merchant.Hex(),
		[]string{friendOne.Hex(), friendTwo.Hex()}, "1")
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, hash)

	detail, err := cli.EscrowDetails(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, merchant, detail.Merchant)
	require.Len(t, detail.Shares, 2)

	total, _ := ParseAmount("1")
	sum := new(big.Int)
	for _, s := range detail.Shares {
		sum.Add(sum, s)
	}
	hostShare := new(big.Int).Sub(total, sum)
	assert.GreaterOrEqual(t, hostShare.Sign(), 0)
	assert.Zero(t, new(big.Int).Add(sum, hostShare).Cmp(total))
}

func TestCreateEscrowRejectsBadInput(t *testing.T) {
	o, _ := connectedOrchestrator(t, ledger.NewFakeClient(host))
	ctx := context.Background()

	_, err := o.CreateEscrow(ctx, "not-an-address", []string{friendOne.Hex()}, "1")
	require.Error(t, err)

	_, err = o.CreateEscrow(ctx, merchant.Hex(), nil, "1")
	require.Error(t, err)

	_, err = o.CreateEscrow(ctx, merchant.Hex(), []string{friendOne.Hex()}, "zero")
	kind, ok := faults.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, faults.KindInvalidAmount, kind)
}

func TestCreateEscrowSurfacesLedgerRejection(t *testing.T) {
	cli := ledger.NewFakeClient(host)
	cli.Errs = map[string]error{
		"createEscrow": errors.New("execution reverted: Not signed up"),
	}
	o, _ := connectedOrchestrator(t, cli)

	_, err := o.CreateEscrow(context.Background(), merchant.Hex(), []string{friendOne.Hex()}, "1")
	kind, ok := faults.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, faults.KindLedgerRejected, kind)
	assert.Contains(t, err.Error(), "Not signed up")
}

func TestRepayPreflightBalanceCheck(t *testing.T) {
	cli := ledger.NewFakeClient(host)
	cli.SetBalance(host, big.NewInt(10)) // far less than 1 token in wei
	o, _ := connectedOrchestrator(t, cli)

	_, err := o.Repay(context.Background(), "1")
	kind, ok := faults.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, faults.KindInsufficientBalance, kind)
}

func TestRepayIncreasesCredit(t *testing.T) {
	cli := ledger.NewFakeClient(host)
	amount, _ := ParseAmount("2")
	cli.SetBalance(host, amount)
	o, _ := connectedOrchestrator(t, cli)

	_, err := o.Repay(context.Background(), "2")
	require.NoError(t, err)
	assert.Zero(t, o.Credit().Cmp(amount))
}

func TestSignUpRefreshesCredit(t *testing.T) {
	cli := ledger.NewFakeClient(host)
	o, _ := connectedOrchestrator(t, cli)

	_, err := o.SignUp(context.Background())
	require.NoError(t, err)

	ok, err := cli.SignedUp(context.Background(), host)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRefreshCreditIdempotent(t *testing.T) {
	cli := ledger.NewFakeClient(host)
	cli.SetCredit(host, big.NewInt(777))
	o, _ := connectedOrchestrator(t, cli)

	first, err := o.RefreshCredit(context.Background())
	require.NoError(t, err)
	second, err := o.RefreshCredit(context.Background())
	require.NoError(t, err)
	assert.Zero(t, first.Cmp(second))
	assert.Zero(t, o.Credit().Cmp(big.NewInt(777)))
}

func TestRefreshRequiresConnection(t *testing.T) {
	m := session.NewManager(session.ManagerConfig{Logger: zerolog.Nop()})
	o := NewOrchestrator(m, zerolog.Nop())
	_, err := o.RefreshCredit(context.Background())
	require.Error(t, err)
}

// blockingLedger delays Accept until released, to exercise the in-flight
// guard.
type blockingLedger struct {
	*ledger.FakeClient
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blockingLedger) Accept(ctx context.Context, id uint64) (ledger.Tx, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.FakeClient.Accept(ctx, id)
}

func TestAcceptSameIDGuard(t *testing.T) {
	blocking := &blockingLedger{
		FakeClient: ledger.NewFakeClient(host),
		release:    make(chan struct{}),
		started:    make(chan struct{}),
	}
	blocking.AddPending(host, 7)
	o, _ := connectedOrchestrator(t, blocking)

	errc := make(chan error, 1)
	go func() {
		_, err := o.AcceptEscrow(context.Background(), 7)
		errc <- err
	}()

	<-blocking.started
	_, err := o.AcceptEscrow(context.Background(), 7)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "in flight")

	close(blocking.release)
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("first accept never finished")
	}
}

func TestAcceptRemovesFromPending(t *testing.T) {
	cli := ledger.NewFakeClient(host)
	cli.AddPending(host, 3)
	o, _ := connectedOrchestrator(t, cli)

	_, err := o.RefreshPending(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{3}, o.Pending())

	_, err = o.AcceptEscrow(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, o.Pending())
}
