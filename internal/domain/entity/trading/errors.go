package trading

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidSide      = errors.New("side must be LONG or SHORT")
	ErrPriceUnavailable = errors.New("price unavailable")
	ErrGateway          = errors.New("gateway error")
	ErrOrderTerminal    = errors.New("order already filled or canceled")
	ErrPartialBracket   = errors.New("partial bracket")
	ErrCancel           = errors.New("cancel failed")
	ErrDrainTimeout     = errors.New("drain timeout exceeded")
	ErrStorageDisabled  = errors.New("storage is not configured")
)

// PartialBracketError reports an entry that was filled while one or both exit
// legs could not be placed. The position needs manual remediation.
type PartialBracketError struct {
	Symbol       string
	EntryOrderID OrderID
	// PlacedLegs maps the leg that did get placed to its order id.
	PlacedLegs map[StopKind]OrderID
	FailedLegs map[StopKind]error
}

func (e *PartialBracketError) Error() string {
	failed := make([]string, 0, len(e.FailedLegs))
	for _, kind := range []StopKind{StopKindStopLoss, StopKindTakeProfit} {
		if err, ok := e.FailedLegs[kind]; ok {
			failed = append(failed, fmt.Sprintf("%s: %v", kind, err))
		}
	}
	placed := make([]string, 0, len(e.PlacedLegs))
	for _, kind := range []StopKind{StopKindStopLoss, StopKindTakeProfit} {
		if id, ok := e.PlacedLegs[kind]; ok {
			placed = append(placed, fmt.Sprintf("%s=%s", kind, id))
		}
	}
	return fmt.Sprintf("partial bracket on %s (entry order %s, placed [%s]): %s",
		e.Symbol, e.EntryOrderID, strings.Join(placed, " "), strings.Join(failed, "; "))
}

func (e *PartialBracketError) Is(target error) bool {
	return target == ErrPartialBracket
}

func (e *PartialBracketError) Unwrap() []error {
	errs := make([]error, 0, len(e.FailedLegs))
	for _, err := range e.FailedLegs {
		errs = append(errs, err)
	}
	return errs
}

// CancelError reports an OCO resolution whose sibling cancel failed for a
// non-benign reason. The pair stays active.
type CancelError struct {
	Symbol        string
	FilledOrderID OrderID
	CancelOrderID OrderID
	Attempts      int
	Err           error
}

func (e *CancelError) Error() string {
	return fmt.Sprintf("cancel order %s on %s after fill of %s failed (%d attempts): %v",
		e.CancelOrderID, e.Symbol, e.FilledOrderID, e.Attempts, e.Err)
}

func (e *CancelError) Is(target error) bool {
	return target == ErrCancel
}

func (e *CancelError) Unwrap() error {
	return e.Err
}
