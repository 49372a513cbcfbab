package txn

import (
	"errors"
	"fmt"

	"github.com/joripage/transfer-orders/pkg/model"
)

var (
	ErrWrongNetwork = errors.New("wallet is on the wrong network")
	ErrTxReverted   = errors.New("transaction reverted")
	ErrNoReceipt    = errors.New("no receipt returned")
)

// Stage names the step of a submission that failed.
type Stage string

const (
	StageNetwork Stage = "network"
	StageSubmit  Stage = "submit"
	StageConfirm Stage = "confirm"
	StageRefresh Stage = "refresh"
)

// SubmitError is returned by Submit for every failure. When Stage is
// StageRefresh the write itself was confirmed.
type SubmitError struct {
	Action model.Action
	Stage  Stage
	Err    error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Action, e.Stage, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}
