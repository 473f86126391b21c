package domain

import (
	"time"
)

type Status string

const (
	StatusCart       Status = "cart"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaid       Status = "paid"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

var statusOrder = []Status{
	StatusCart, StatusPending, StatusProcessing, StatusPaid, StatusShipped, StatusDelivered,
}

func ParseStatus(s string) (Status, bool) {
	st := Status(s)
	if st == StatusCancelled {
		return st, true
	}
	for _, known := range statusOrder {
		if known == st {
			return st, true
		}
	}
	return "", false
}

func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// CanTransition reports whether moving from one status to another follows the
// linear cart → … → delivered progression, with cancellation allowed from any
// non-terminal status. Status updates are not rejected on a false result.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	return rank(to) == rank(from)+1
}

func rank(s Status) int {
	for i, known := range statusOrder {
		if known == s {
			return i
		}
	}
	return -1
}

// MinWeightGrams is the smallest allowed total mass of weight-unit items.
const MinWeightGrams = 1000

type LineItem struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     int64  `json:"price"`
	Quantity  int64  `json:"quantity"`
	Weight    int64  `json:"weight,omitempty"`
	Unit      Unit   `json:"unit"`
	Total     int64  `json:"total"`
}

// LineTotal is the price of the whole line.
func (li LineItem) LineTotal() int64 {
	return li.Price * li.Quantity
}

type Customer struct {
	FullName       string `json:"fullName"`
	Phone          string `json:"phone"`
	Email          string `json:"email"`
	City           string `json:"city"`
	Region         string `json:"region"`
	Address        string `json:"address"`
	DeliveryMethod string `json:"deliveryMethod"`
	DeliveryPrice  int64  `json:"deliveryPrice"`
	Comment        string `json:"comment,omitempty"`
}

type Order struct {
	ID            string     `json:"id"`
	OrderNumber   string     `json:"orderNumber"`
	UserID        int64      `json:"userId"`
	Status        Status     `json:"status"`
	Items         []LineItem `json:"items"`
	Customer      Customer   `json:"customer"`
	Subtotal      int64      `json:"subtotal"`
	DeliveryPrice int64      `json:"deliveryPrice"`
	Total         int64      `json:"total"`
	IsFromMoscow  bool       `json:"isFromMoscow"`
	PaidAt        *time.Time `json:"paidAt,omitempty"`
	ShippedAt     *time.Time `json:"shippedAt,omitempty"`
	DeliveredAt   *time.Time `json:"deliveredAt,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}

// WeightGrams sums weight*quantity over weight-unit items.
func WeightGrams(items []LineItem) int64 {
	var w int64
	for _, it := range items {
		if it.Unit == UnitWeight {
			w += it.Weight * it.Quantity
		}
	}
	return w
}

// ValidateWeightMinimum rejects orders whose weight-unit items are present
// but weigh less than a kilogram in total.
func (o *Order) ValidateWeightMinimum() error {
	w := WeightGrams(o.Items)
	if w > 0 && w < MinWeightGrams {
		return NewValidationError("Минимальный объём заказа по весовым товарам от 1 кг")
	}
	return nil
}

// CalculateTotal sets Subtotal, DeliveryPrice and Total from the current items
// and the customer's delivery price, and returns Total.
func (o *Order) CalculateTotal() int64 {
	o.Subtotal = Subtotal(o.Items)
	o.DeliveryPrice = o.Customer.DeliveryPrice
	o.Total = o.Subtotal + o.DeliveryPrice
	return o.Total
}

func Subtotal(items []LineItem) int64 {
	var sum int64
	for _, it := range items {
		sum += it.Total
	}
	return sum
}

func ComputeTotal(items []LineItem, deliveryPrice int64) int64 {
	return Subtotal(items) + deliveryPrice
}

// ApplyStatus overwrites the status and stamps the matching timestamp.
func (o *Order) ApplyStatus(s Status, now time.Time) {
	o.Status = s
	o.UpdatedAt = now
	switch s {
	case StatusPaid:
		o.PaidAt = &now
	case StatusShipped:
		o.ShippedAt = &now
	case StatusDelivered:
		o.DeliveredAt = &now
	}
}
