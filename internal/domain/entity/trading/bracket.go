package trading

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeRequest describes the position a caller wants opened with a bracket.
// EntryPrice is optional; nil means "use the current market price".
type TradeRequest struct {
	Symbol        string           `json:"symbol"`
	Side          Side             `json:"side"`
	Quantity      decimal.Decimal  `json:"quantity" swaggertype:"string"`
	EntryPrice    *decimal.Decimal `json:"entry_price,omitempty" swaggertype:"string"`
	StopLossPct   decimal.Decimal  `json:"stop_loss_pct" swaggertype:"string"`
	TakeProfitPct decimal.Decimal  `json:"take_profit_pct" swaggertype:"string"`
}

// BracketLevels are the rounded prices of a bracket.
type BracketLevels struct {
	Entry      decimal.Decimal `json:"entry" swaggertype:"string"`
	StopLoss   decimal.Decimal `json:"stop_loss" swaggertype:"string"`
	TakeProfit decimal.Decimal `json:"take_profit" swaggertype:"string"`
}

// PairStatus is the lifecycle state of a tracked exit pair.
type PairStatus string

const (
	PairStatusPending     PairStatus = "PENDING"
	PairStatusEntryFilled PairStatus = "ENTRY_FILLED"
	PairStatusResolved    PairStatus = "RESOLVED"
)

func (s PairStatus) String() string {
	return string(s)
}

// IsActive reports whether the exit legs still need watching.
func (s PairStatus) IsActive() bool {
	return s == PairStatusPending || s == PairStatusEntryFilled
}

// TrackedOrderPair correlates an entry order with its stop-loss and take-profit legs.
type TrackedOrderPair struct {
	EntryOrderID      OrderID         `json:"entry_order_id"`
	StopLossOrderID   OrderID         `json:"stop_loss_order_id"`
	TakeProfitOrderID OrderID         `json:"take_profit_order_id"`
	Symbol            string          `json:"symbol"`
	Side              Side            `json:"side"`
	Quantity          decimal.Decimal `json:"quantity" swaggertype:"string"`
	Levels            BracketLevels   `json:"levels"`
	Status            PairStatus      `json:"status"`
	ClientOrderIDs    []string        `json:"client_order_ids,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
}

// Clone returns a copy that shares no memory with p.
func (p *TrackedOrderPair) Clone() TrackedOrderPair {
	out := *p
	if p.ClientOrderIDs != nil {
		out.ClientOrderIDs = append([]string(nil), p.ClientOrderIDs...)
	}
	if p.ResolvedAt != nil {
		resolvedAt := *p.ResolvedAt
		out.ResolvedAt = &resolvedAt
	}
	return out
}

// Sibling returns the other exit leg of id. ok is false when id is not an exit leg.
func (p *TrackedOrderPair) Sibling(id OrderID) (OrderID, bool) {
	switch id {
	case p.StopLossOrderID:
		return p.TakeProfitOrderID, true
	case p.TakeProfitOrderID:
		return p.StopLossOrderID, true
	default:
		return "", false
	}
}

// LegName names the role of id within the pair for logs and metrics.
func (p *TrackedOrderPair) LegName(id OrderID) string {
	switch id {
	case p.EntryOrderID:
		return "entry"
	case p.StopLossOrderID:
		return "stop_loss"
	case p.TakeProfitOrderID:
		return "take_profit"
	default:
		return "unknown"
	}
}
