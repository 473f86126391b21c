package domain

import (
	"strings"
	"time"
)

type Unit string

const (
	UnitPiece  Unit = "piece"
	UnitWeight Unit = "weight"
)

// ParseUnit accepts both the canonical values and the labels used by the web app.
func ParseUnit(s string) (Unit, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "piece", "штука", "шт":
		return UnitPiece, true
	case "weight", "вес":
		return UnitWeight, true
	}
	return "", false
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon"`
}

var Categories = []Category{
	{ID: "new", Name: "Новинки от МАК ТАБАК", Icon: "🆕"},
	{ID: "standard", Name: "Стандартные бленды", Icon: "📦"},
	{ID: "aromatic", Name: "Ароматизированные бленды", Icon: "🌸"},
	{ID: "pipe", Name: "Трубочные бленды", Icon: "🚬"},
	{ID: "gilzy", Name: "Сигаретные гильзы", Icon: "🔖"},
	{ID: "custom", Name: "Собрать свой набор", Icon: "🎨"},
	{ID: "mactabak", Name: "Продукция от МАКТАБАК", Icon: "⭐"},
	{ID: "pipes", Name: "Курительные трубки", Icon: "🥃"},
	{ID: "machines", Name: "Машинки для набивки", Icon: "⚙️"},
	{ID: "tea", Name: "Китайский чай", Icon: "🍵"},
	{ID: "tamper", Name: "Тампер", Icon: "🔨"},
}

func IsCategory(id string) bool {
	for _, c := range Categories {
		if c.ID == id {
			return true
		}
	}
	return false
}

type Product struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Category    string    `json:"category"`
	Price       int64     `json:"price"`
	Unit        Unit      `json:"unit"`
	Weight      *int64    `json:"weight"`
	Description string    `json:"description"`
	Image       string    `json:"image"`
	IsAvailable bool      `json:"isAvailable"`
	Stock       int64     `json:"stock"`
	Sold        int64     `json:"sold"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Validate checks the fields the admin panel is allowed to get wrong.
func (p *Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewValidationError("название товара обязательно")
	}
	if !IsCategory(p.Category) {
		return NewValidationError("неизвестная категория: %s", p.Category)
	}
	if p.Price < 0 {
		return NewValidationError("цена не может быть отрицательной")
	}
	switch p.Unit {
	case UnitPiece:
	case UnitWeight:
		if p.Weight == nil || *p.Weight <= 0 {
			return NewValidationError("для весового товара нужно указать вес в граммах")
		}
	default:
		return NewValidationError("неизвестная единица измерения: %s", p.Unit)
	}
	if p.Stock < 0 || p.Sold < 0 {
		return NewValidationError("остаток и продажи не могут быть отрицательными")
	}
	return nil
}

// ProductSort is the sort key accepted by the catalog listing.
type ProductSort string

const (
	SortDefault   ProductSort = "default"
	SortPriceAsc  ProductSort = "price_asc"
	SortPriceDesc ProductSort = "price_desc"
	SortNew       ProductSort = "new"
)

type ProductFilter struct {
	Category      string
	Search        string
	Sort          ProductSort
	AvailableOnly bool
}
