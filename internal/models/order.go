package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the canonical status vocabulary. Raw backend spellings are
// mapped onto it by NormalizeStatus before anything downstream sees them.
type OrderStatus string

const (
	OrderStatusUnknown         OrderStatus = "unknown"
	OrderStatusConfirmed       OrderStatus = "confirmed"
	OrderStatusAssignToCourier OrderStatus = "assigntocourier"
	OrderStatusCollected       OrderStatus = "collected"
	OrderStatusEnRoute         OrderStatus = "enroute"
	OrderStatusArrived         OrderStatus = "arrived"
	OrderStatusCompleted       OrderStatus = "completed"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// RankCancelled marks cancelled as out-of-band: it is not on the progress scale.
const RankCancelled = -1

// Keys are raw spellings with case, '_', '-' and spaces removed.
var statusAliases = map[string]OrderStatus{
	"confirmed":         OrderStatusConfirmed,
	"accepted":          OrderStatusConfirmed,
	"assigntocourier":   OrderStatusAssignToCourier,
	"assignedtocourier": OrderStatusAssignToCourier,
	"courierassigned":   OrderStatusAssignToCourier,
	"assigned":          OrderStatusAssignToCourier,
	"collected":         OrderStatusCollected,
	"pickedup":          OrderStatusCollected,
	"enroute":           OrderStatusEnRoute,
	"ontheway":          OrderStatusEnRoute,
	"intransit":         OrderStatusEnRoute,
	"arrived":           OrderStatusArrived,
	"atdoor":            OrderStatusArrived,
	"completed":         OrderStatusCompleted,
	"delivered":         OrderStatusCompleted,
	"cancelled":         OrderStatusCancelled,
	"canceled":          OrderStatusCancelled,
}

// NormalizeStatus maps any known spelling to the canonical enum. Unknown
// values become OrderStatusUnknown instead of failing, so a new backend
// status never breaks tracking.
func NormalizeStatus(raw string) OrderStatus {
	key := strings.Map(func(r rune) rune {
		switch r {
		case '_', '-', ' ', '\t':
			return -1
		}
		return r
	}, strings.ToLower(strings.TrimSpace(raw)))
	if s, ok := statusAliases[key]; ok {
		return s
	}
	return OrderStatusUnknown
}

// Rank is the phase on the progress scale: confirmed(0) < assigntocourier(1)
// < collected(2) < completed(3). The moving sub-states share the collected
// phase; unknown ranks as 0.
func (s OrderStatus) Rank() int {
	switch s {
	case OrderStatusAssignToCourier:
		return 1
	case OrderStatusCollected, OrderStatusEnRoute, OrderStatusArrived:
		return 2
	case OrderStatusCompleted:
		return 3
	case OrderStatusCancelled:
		return RankCancelled
	default:
		return 0
	}
}

// Progress refines Rank with the sub-stage inside the collected phase
// (collected < enroute < arrived). A genuine advance is an increase of Progress.
func (s OrderStatus) Progress() int {
	p := s.Rank() * 10
	switch s {
	case OrderStatusEnRoute:
		p++
	case OrderStatusArrived:
		p += 2
	}
	return p
}

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// IsMoving reports the sub-states upstream tends to re-announce.
func (s OrderStatus) IsMoving() bool {
	return s == OrderStatusEnRoute || s == OrderStatusArrived
}

// TruckPosition is the cosmetic progress of the truck icon, 0..100.
// -1 means "leave it where it is".
func (s OrderStatus) TruckPosition() int {
	switch s {
	case OrderStatusConfirmed:
		return 0
	case OrderStatusAssignToCourier:
		return 20
	case OrderStatusCollected:
		return 45
	case OrderStatusEnRoute:
		return 65
	case OrderStatusArrived:
		return 90
	case OrderStatusCompleted:
		return 100
	default:
		return -1
	}
}

type OrderItem struct {
	Name         string          `json:"name"`
	Quantity     int             `json:"quantity"`
	UnitPrice    decimal.Decimal `json:"unitPrice"`
	RewardPoints int             `json:"rewardPoints"`
}

type Address struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

type Driver struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type OrderTimestamps struct {
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
	AssignedAt  *time.Time `json:"assignedAt,omitempty"`
	CollectedAt *time.Time `json:"collectedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
}

// OrderSnapshot is one fetched copy of the backend order. Each poll replaces
// the previous snapshot wholesale.
type OrderSnapshot struct {
	ID         string          `json:"id"`
	Status     OrderStatus     `json:"status"`
	StatusRaw  string          `json:"statusRaw"`
	Items      []OrderItem     `json:"items"`
	Address    Address         `json:"address"`
	Driver     *Driver         `json:"driver,omitempty"`
	Timestamps OrderTimestamps `json:"timestamps"`
	FetchedAt  time.Time       `json:"fetchedAt"`
}

func (s OrderSnapshot) Total() decimal.Decimal {
	total := decimal.Zero
	for _, it := range s.Items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func (s OrderSnapshot) RewardPoints() int {
	n := 0
	for _, it := range s.Items {
		n += it.RewardPoints * it.Quantity
	}
	return n
}
