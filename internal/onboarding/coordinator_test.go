package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"letspay/internal/ledger"
	"letspay/internal/localstate"
	"letspay/internal/registrar"
	"letspay/internal/session"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	requiredChain = big.NewInt(545)
	alice         = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

type statusFunc func(ctx context.Context, account string) (bool, error)

func (f statusFunc) Status(ctx context.Context, account string) (bool, error) {
	return f(ctx, account)
}

func relayStub(t *testing.T, table map[string][]registrar.Name) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/ens-subnames/"):
			owner := strings.ToLower(strings.TrimPrefix(r.URL.Path, "/ens-subnames/"))
			names := table[owner]
			if names == nil {
				names = []registrar.Name{}
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"subnames": names})
		case r.URL.Path == "/register-subname":
			var req struct {
				Label string `json:"label"`
				Owner string `json:"owner"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			name := registrar.Name{Name: req.Label + ".letspay.eth", Owner: req.Owner}
			table[strings.ToLower(req.Owner)] = []registrar.Name{name}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": true, "subname": name})
		default:
			http.NotFound(w, r)
		}
	}))
}

type fixture struct {
	manager *session.Manager
	ledger  *ledger.FakeClient
	machine *Machine
	coord   *Coordinator
}

func newFixture(t *testing.T, names *registrar.Client, status StatusSource) *fixture {
	t.Helper()
	cli := ledger.NewFakeClient(alice)
	provider := session.NewStaticProvider(requiredChain, alice)
	manager := session.NewManager(session.ManagerConfig{
		Provider:      provider,
		RequiredChain: requiredChain,
		NewLedger: func(_ context.Context, _ common.Address, _ *bind.TransactOpts) (ledger.Client, error) {
			return cli, nil
		},
		Names:  names,
		Facts:  localstate.NewMemoryStore(),
		Logger: zerolog.Nop(),
	})
	machine := NewMachine(zerolog.Nop())
	coord := NewCoordinator(machine, manager, status, zerolog.Nop())
	return &fixture{manager: manager, ledger: cli, machine: machine, coord: coord}
}

func TestFreshAccountWalksEveryStep(t *testing.T) {
	table := map[string][]registrar.Name{}
	relay := relayStub(t, table)
	defer relay.Close()

	fx := newFixture(t, registrar.NewClient(relay.URL, zerolog.Nop()),
		statusFunc(func(context.Context, string) (bool, error) { return false, nil }))

	ctx := context.Background()
	require.Equal(t, Disconnected, fx.machine.State())

	_, err := fx.manager.Connect(ctx)
	require.NoError(t, err)
	assert.Equal(t, AwaitingUsername, fx.coord.Sync(ctx))

	// Registering the name advances the machine without reconnecting.
	_, err = fx.manager.RegisterUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, AwaitingVerification, fx.coord.RefreshUsername())

	// Either verification producer firing is sufficient.
	assert.Equal(t, AwaitingSignup, fx.coord.MarkVerified(ctx))

	_, err = fx.ledger.SignUp(ctx)
	require.NoError(t, err)
	assert.Equal(t, Ready, fx.coord.RefreshSignup(ctx))
}

func TestLocalOverrideShortCircuitsRemoteCheck(t *testing.T) {
	var remoteCalls int
	fx := newFixture(t, nil, statusFunc(func(context.Context, string) (bool, error) {
		remoteCalls++
		return false, nil
	}))

	ctx := context.Background()
	_, err := fx.manager.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, fx.manager.Facts().Set(ctx, alice.Hex(), localstate.KeyVerified, "1"))

	fx.coord.Sync(ctx)
	assert.True(t, fx.machine.Signals().Verified)
	assert.Zero(t, remoteCalls)
}

func TestBackendPollPersistsOverride(t *testing.T) {
	fx := newFixture(t, nil, statusFunc(func(context.Context, string) (bool, error) {
		return true, nil
	}))

	ctx := context.Background()
	_, err := fx.manager.Connect(ctx)
	require.NoError(t, err)

	fx.coord.Sync(ctx)
	assert.True(t, fx.machine.Signals().Verified)

	v, ok, err := fx.manager.Facts().Get(ctx, alice.Hex(), localstate.KeyVerified)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
}

func TestVerificationCheckFailureIsNotFatal(t *testing.T) {
	fx := newFixture(t, nil, statusFunc(func(context.Context, string) (bool, error) {
		return false, errors.New("backend down")
	}))

	ctx := context.Background()
	_, err := fx.manager.Connect(ctx)
	require.NoError(t, err)

	state := fx.coord.Sync(ctx)
	// Connected but unverified; no username source means the username gate
	// fires first.
	assert.Equal(t, AwaitingUsername, state)
	assert.False(t, fx.machine.Signals().Verified)
}

func TestBothProducersFiringIsANoOp(t *testing.T) {
	fx := newFixture(t, nil, statusFunc(func(context.Context, string) (bool, error) {
		return true, nil
	}))

	ctx := context.Background()
	_, err := fx.manager.Connect(ctx)
	require.NoError(t, err)

	fx.coord.Sync(ctx)          // poll producer
	fx.coord.MarkVerified(ctx)  // event producer
	fx.coord.MarkVerified(ctx)  // repeat event
	assert.True(t, fx.machine.Signals().Verified)
}

func TestDirectAccountSwitchReEvaluatesUsernameGate(t *testing.T) {
	bob := common.HexToAddress("0x2222222222222222222222222222222222222222")
	table := map[string][]registrar.Name{
		strings.ToLower(alice.Hex()): {{Name: "alice.letspay.eth", Owner: alice.Hex()}},
	}
	relay := relayStub(t, table)
	defer relay.Close()

	provider := session.NewStaticProvider(requiredChain, alice)
	manager := session.NewManager(session.ManagerConfig{
		Provider:      provider,
		RequiredChain: requiredChain,
		NewLedger: func(_ context.Context, account common.Address, _ *bind.TransactOpts) (ledger.Client, error) {
			return ledger.NewFakeClient(account), nil
		},
		Names:  registrar.NewClient(relay.URL, zerolog.Nop()),
		Facts:  localstate.NewMemoryStore(),
		Logger: zerolog.Nop(),
	})
	machine := NewMachine(zerolog.Nop())
	NewCoordinator(machine, manager, statusFunc(func(context.Context, string) (bool, error) {
		return false, nil
	}), zerolog.Nop())

	ctx := context.Background()
	_, err := manager.Connect(ctx)
	require.NoError(t, err)
	require.Equal(t, AwaitingVerification, machine.State())

	// Direct account switch: the new account has no name, so the machine must
	// fall back to the username gate rather than keep the old account's state.
	provider.SetAccounts(bob)
	manager.OnAccountsChanged(ctx, []common.Address{bob})

	require.Equal(t, bob, manager.Current().Account)
	assert.True(t, manager.NeedsUsername())
	assert.Equal(t, AwaitingUsername, machine.State())
}

func TestTeardownRegressesMachine(t *testing.T) {
	fx := newFixture(t, nil, nil)

	ctx := context.Background()
	_, err := fx.manager.Connect(ctx)
	require.NoError(t, err)
	fx.coord.Sync(ctx)
	require.NotEqual(t, Disconnected, fx.machine.State())

	// The manager notifies the coordinator through its subscription.
	fx.manager.Disconnect(ctx)
	assert.Equal(t, Disconnected, fx.machine.State())
}
