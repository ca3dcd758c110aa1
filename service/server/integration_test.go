package server_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/brojonat/ultraswap/client"
	"github.com/brojonat/ultraswap/service/actions"
	"github.com/brojonat/ultraswap/service/db"
	"github.com/brojonat/ultraswap/service/dispatch"
	"github.com/brojonat/ultraswap/service/keystore"
	natspkg "github.com/brojonat/ultraswap/service/nats"
	"github.com/brojonat/ultraswap/service/pairs"
	"github.com/brojonat/ultraswap/service/server"
	"github.com/brojonat/ultraswap/service/session"
	solanapkg "github.com/brojonat/ultraswap/service/solana"
	"github.com/brojonat/ultraswap/service/swap"
	"github.com/brojonat/ultraswap/service/temporal"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	usdcMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
	bonkMint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"
)

type stubBalances struct{}

func (stubBalances) GetBalance(ctx context.Context, owner solanago.PublicKey, mint string) (*solanapkg.Balance, error) {
	return &solanapkg.Balance{Mint: mint, Owner: owner, Amount: 1000}, nil
}

func (stubBalances) ReceivedAmount(ctx context.Context, sig solanago.Signature, owner solanago.PublicKey, mint string) (int64, bool, error) {
	return 0, false, nil
}

type stubSwapper struct{}

func (stubSwapper) Run(ctx context.Context, req swap.Request) (*swap.Outcome, error) {
	return &swap.Outcome{Status: swap.StatusSuccess, Signature: "5igStub"}, nil
}

func TestIntegration_PairLifecycleAndSwap(t *testing.T) {
	db.SkipIfNoTestDB(t)
	t.Setenv(keystore.EnvVar, "")

	store := db.NewTestStore(t)
	defer store.Close()
	store.Cleanup(t)

	bus := natspkg.NewLocalBus(nil)
	defer bus.Close()
	dispatcher := dispatch.New(2, nil, nil)
	defer dispatcher.Close()
	scheduler := temporal.NewMockScheduler()

	app, err := actions.New(actions.Config{
		KeyPath:      filepath.Join(t.TempDir(), "private_key.txt"),
		PollInterval: 10 * time.Second,
		Store:        store,
		Balances:     stubBalances{},
		NewSwapper: func(s *session.Session) (actions.Swapper, error) {
			return stubSwapper{}, nil
		},
		Dispatcher: dispatcher,
		Publisher:  bus,
		Scheduler:  scheduler,
	})
	require.NoError(t, err)

	srv := server.New(":0", app, bus, pairs.Defaults{SlippageBps: 300, PriorityFeeLamports: 500000}, nil, nil)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx := context.Background()
	cl := client.NewClient(ts.URL, nil, nil)

	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	got, err := cl.SetKey(ctx, key.String())
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey().String(), got.PublicKey)

	pair, err := cl.CreatePair(ctx, client.PairForm{
		InputMint:  usdcMint,
		OutputMint: bonkMint,
		Amount:     "250",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(300), pair.SlippageBps)
	assert.Equal(t, int64(500000), pair.PriorityFeeLamports)

	poll, ok := scheduler.Schedule(pair.ID)
	require.True(t, ok, "token-funded pair should be polled")
	assert.Equal(t, usdcMint, poll.Mint)

	swaps, err := bus.Subscribe(ctx, natspkg.KindSwap)
	require.NoError(t, err)

	task, err := cl.Buy(ctx, pair.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, task.TaskID)

	select {
	case event := <-swaps:
		assert.Equal(t, task.TaskID, event.TaskID)
		assert.Contains(t, event.Message, "Success: 5igStub")
	case <-time.After(5 * time.Second):
		t.Fatal("no swap result on the console")
	}

	require.NoError(t, cl.DeletePair(ctx, pair.ID))
	_, err = cl.GetPair(ctx, pair.ID)
	require.Error(t, err)
	assert.Equal(t, 0, scheduler.ScheduleCount())
}
