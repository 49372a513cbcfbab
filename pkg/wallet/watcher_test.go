package wallet

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedAccounts struct {
	answers [][]common.Address
	errs    []error
	i       int
}

func (s *scriptedAccounts) Accounts(context.Context) ([]common.Address, error) {
	i := s.i
	if i >= len(s.answers) {
		i = len(s.answers) - 1
	}
	s.i++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.answers[i], err
}

func TestAccountWatcherReportsChangesOnly(t *testing.T) {
	a := common.HexToAddress("0xaa")
	b := common.HexToAddress("0xbb")
	src := &scriptedAccounts{answers: [][]common.Address{{a}, {a}, {b}, {b}, nil}}

	var seen [][]common.Address
	w := NewAccountWatcher(src, AccountsHandlerFunc(func(_ context.Context, accounts []common.Address) {
		seen = append(seen, accounts)
	}), time.Hour, nil)
	w.ctx = context.Background()

	for range 5 {
		w.poll()
	}

	require.Len(t, seen, 2)
	assert.Equal(t, []common.Address{b}, seen[0])
	assert.Empty(t, seen[1])
}

func TestAccountWatcherSkipsFailedPolls(t *testing.T) {
	a := common.HexToAddress("0xaa")
	src := &scriptedAccounts{
		answers: [][]common.Address{{a}, nil, {a}},
		errs:    []error{nil, errors.New("timeout"), nil},
	}

	calls := 0
	w := NewAccountWatcher(src, AccountsHandlerFunc(func(context.Context, []common.Address) { calls++ }), time.Hour, nil)
	w.ctx = context.Background()

	for range 3 {
		w.poll()
	}
	assert.Zero(t, calls)
}

func TestAccountWatcherStartStop(t *testing.T) {
	src := &scriptedAccounts{answers: [][]common.Address{{common.HexToAddress("0xaa")}}}
	w := NewAccountWatcher(src, nil, time.Millisecond, nil)

	require.NoError(t, w.Start(context.Background()))
	time.Sleep(5 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))
}
