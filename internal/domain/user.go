package domain

import "time"

// SavedData is the checkout form autofill cached per user.
type SavedData struct {
	FullName          string `json:"fullName"`
	Phone             string `json:"phone"`
	Email             string `json:"email"`
	City              string `json:"city"`
	Region            string `json:"region"`
	Address           string `json:"address"`
	PreferredDelivery string `json:"preferredDelivery"`
}

func SavedDataFrom(c Customer) SavedData {
	return SavedData{
		FullName:          c.FullName,
		Phone:             c.Phone,
		Email:             c.Email,
		City:              c.City,
		Region:            c.Region,
		Address:           c.Address,
		PreferredDelivery: c.DeliveryMethod,
	}
}

type User struct {
	TelegramID   int64     `json:"telegramId"`
	Username     string    `json:"username"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	SavedData    SavedData `json:"savedData"`
	LastActivity time.Time `json:"lastActivity"`
	CreatedAt    time.Time `json:"createdAt"`
}

type CartItem struct {
	ProductID string `json:"productId"`
	Quantity  int64  `json:"quantity"`
}

type Cart struct {
	UserID    int64      `json:"userId"`
	Items     []CartItem `json:"items"`
	UpdatedAt time.Time  `json:"updatedAt"`
}
