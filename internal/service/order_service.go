package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mactabak/internal/domain"
	"mactabak/internal/metrics"
	"mactabak/internal/repository"
)

// Router delivers order notifications to Telegram.
type Router interface {
	Route(ctx context.Context, o domain.Order) error
	NotifyManager(ctx context.Context, o domain.Order) error
	PaymentConfirmed(ctx context.Context, o domain.Order, userID int64) error
}

type OrderItemInput struct {
	ProductID string `json:"productId"`
	ID        string `json:"id"`
	Name      string `json:"name" validate:"required"`
	Price     int64  `json:"price" validate:"gte=0,max=10000000"`
	Quantity  int64  `json:"quantity" validate:"gt=0,max=10000"`
	Weight    int64  `json:"weight" validate:"gte=0,max=100000"`
	Unit      string `json:"unit"`
}

type CustomerInput struct {
	FullName       string `json:"fullName" validate:"required"`
	Phone          string `json:"phone" validate:"required"`
	Email          string `json:"email" validate:"omitempty,email"`
	City           string `json:"city" validate:"required"`
	Region         string `json:"region"`
	Address        string `json:"address" validate:"required"`
	DeliveryMethod string `json:"deliveryMethod" validate:"required"`
	DeliveryPrice  int64  `json:"deliveryPrice" validate:"gte=0,max=1000000"`
	Comment        string `json:"comment"`
}

// CreateOrderInput is the checkout form. UserID is zero when the web app is
// opened outside Telegram.
type CreateOrderInput struct {
	UserID   int64            `json:"userId" validate:"gte=0"`
	Items    []OrderItemInput `json:"items" validate:"required,min=1,max=200,dive"`
	Customer CustomerInput    `json:"customer"`
}

// ManagerOrderInput is an order posted by the web app for manual forwarding
// to the manager.
type ManagerOrderInput struct {
	OrderNumber string           `json:"orderNumber" validate:"required"`
	Items       []OrderItemInput `json:"items" validate:"required,min=1,max=200,dive"`
	Customer    CustomerInput    `json:"customer"`
}

type CreateOrderResult struct {
	OrderID      string `json:"id"`
	OrderNumber  string `json:"orderNumber"`
	IsFromMoscow bool   `json:"isFromMoscow"`
}

// fieldMessages is looked up by "Field.tag" first, then by field.
var fieldMessages = map[string]string{
	"UserID":            "не указан пользователь",
	"OrderNumber":       "не указан номер заказа",
	"Items":             "корзина пуста",
	"Items.max":         "слишком много позиций в заказе",
	"Name":              "у товара нет названия",
	"Price":             "цена товара не может быть отрицательной",
	"Price.max":         "слишком большая цена товара",
	"Quantity":          "количество товара должно быть больше нуля",
	"Quantity.max":      "слишком большое количество товара",
	"Weight":            "вес товара не может быть отрицательным",
	"Weight.max":        "слишком большой вес товара",
	"FullName":          "укажите ФИО",
	"Phone":             "укажите телефон",
	"Email":             "некорректный email",
	"City":              "укажите город",
	"Address":           "укажите адрес",
	"DeliveryMethod":    "выберите способ доставки",
	"DeliveryPrice":     "стоимость доставки не может быть отрицательной",
	"DeliveryPrice.max": "слишком большая стоимость доставки",
}

type OrderService struct {
	logger   *zap.Logger
	validate *validator.Validate
	orders   *repository.OrderRepository
	users    *repository.UserRepository
	products *repository.ProductRepository
	counter  repository.Counter
	carts    repository.CartStore
	router   Router
	metrics  *metrics.Metrics
	prefix   string
	now      func() time.Time
}

func NewOrderService(
	logger *zap.Logger,
	orders *repository.OrderRepository,
	users *repository.UserRepository,
	products *repository.ProductRepository,
	counter repository.Counter,
	carts repository.CartStore,
	router Router,
	m *metrics.Metrics,
	prefix string,
) *OrderService {
	return &OrderService{
		logger:   logger,
		validate: validator.New(),
		orders:   orders,
		users:    users,
		products: products,
		counter:  counter,
		carts:    carts,
		router:   router,
		metrics:  m,
		prefix:   prefix,
		now:      time.Now,
	}
}

// Create validates the checkout form, numbers and stores the order, then hands it
// to the router. Post-commit failures are logged and never returned.
func (s *OrderService) Create(ctx context.Context, in CreateOrderInput) (CreateOrderResult, error) {
	if err := s.check(in); err != nil {
		return CreateOrderResult{}, err
	}

	items, err := lineItems(in.Items)
	if err != nil {
		return CreateOrderResult{}, err
	}

	now := s.now()
	order := domain.Order{
		ID:        uuid.New().String(),
		UserID:    in.UserID,
		Status:    domain.StatusPending,
		Items:     items,
		Customer:  customer(in.Customer),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := order.ValidateWeightMinimum(); err != nil {
		return CreateOrderResult{}, err
	}
	order.CalculateTotal()
	order.IsFromMoscow = domain.IsMoscowRegion(order.Customer.City, order.Customer.Region)

	seq, err := s.counter.Next(ctx, repository.OrderNumberCounter)
	if err != nil {
		return CreateOrderResult{}, domain.Dependency("order counter", err)
	}
	order.OrderNumber = s.prefix + strconv.FormatInt(seq, 10)

	if err := s.orders.Create(ctx, &order); err != nil {
		return CreateOrderResult{}, domain.Dependency("database", err)
	}
	s.logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("order_number", order.OrderNumber),
		zap.Int64("user_id", order.UserID),
		zap.Int64("total", order.Total),
		zap.Bool("moscow", order.IsFromMoscow),
	)
	s.metrics.OrdersCreated.WithLabelValues(metrics.Branch(order.IsFromMoscow)).Inc()

	s.afterCommit(ctx, order)

	if err := s.router.Route(ctx, order); err != nil {
		s.metrics.NotifyFailed.WithLabelValues("route").Inc()
		s.logger.Error("order notification failed", zap.String("order_number", order.OrderNumber), zap.Error(err))
	}

	return CreateOrderResult{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		IsFromMoscow: order.IsFromMoscow,
	}, nil
}

func (s *OrderService) afterCommit(ctx context.Context, o domain.Order) {
	if o.UserID != 0 {
		s.forgetCart(ctx, o)
	}
	for _, it := range o.Items {
		if it.ProductID == "" {
			continue
		}
		if err := s.products.AddSold(ctx, it.ProductID, it.Quantity); err != nil && !domain.IsNotFound(err) {
			s.logger.Warn("update sold counter", zap.String("product_id", it.ProductID), zap.Error(err))
		}
	}
}

// forgetCart stores the checkout details for the next order and drops the cart.
func (s *OrderService) forgetCart(ctx context.Context, o domain.Order) {
	if err := s.users.SaveData(ctx, o.UserID, domain.SavedDataFrom(o.Customer)); err != nil {
		s.logger.Warn("save user data", zap.Int64("user_id", o.UserID), zap.Error(err))
	}
	if err := s.carts.Clear(ctx, o.UserID); err != nil {
		s.logger.Warn("clear cart", zap.Int64("user_id", o.UserID), zap.Error(err))
	}
}

func (s *OrderService) check(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		if msg, ok := fieldMessages[fe.StructField()+"."+fe.Tag()]; ok {
			return domain.NewValidationError("%s", msg)
		}
		if msg, ok := fieldMessages[fe.StructField()]; ok {
			return domain.NewValidationError("%s", msg)
		}
		return domain.NewValidationError("некорректное поле %s", verrs[0].Field())
	}
	return fmt.Errorf("validate order: %w", err)
}

func lineItems(in []OrderItemInput) ([]domain.LineItem, error) {
	items := make([]domain.LineItem, 0, len(in))
	for _, it := range in {
		li, err := lineItem(it)
		if err != nil {
			return nil, err
		}
		items = append(items, li)
	}
	return items, nil
}

func customer(in CustomerInput) domain.Customer {
	return domain.Customer{
		FullName:       strings.TrimSpace(in.FullName),
		Phone:          strings.TrimSpace(in.Phone),
		Email:          strings.TrimSpace(in.Email),
		City:           strings.TrimSpace(in.City),
		Region:         strings.TrimSpace(in.Region),
		Address:        strings.TrimSpace(in.Address),
		DeliveryMethod: in.DeliveryMethod,
		DeliveryPrice:  in.DeliveryPrice,
		Comment:        in.Comment,
	}
}

func lineItem(in OrderItemInput) (domain.LineItem, error) {
	unit := domain.UnitPiece
	if in.Unit != "" {
		u, ok := domain.ParseUnit(in.Unit)
		if !ok {
			return domain.LineItem{}, domain.NewValidationError("неизвестная единица измерения: %s", in.Unit)
		}
		unit = u
	}
	if unit == domain.UnitWeight && in.Weight <= 0 {
		return domain.LineItem{}, domain.NewValidationError("для весового товара %s не указан вес", in.Name)
	}
	id := in.ProductID
	if id == "" {
		id = in.ID
	}
	li := domain.LineItem{
		ProductID: id,
		Name:      in.Name,
		Price:     in.Price,
		Quantity:  in.Quantity,
		Weight:    in.Weight,
		Unit:      unit,
	}
	li.Total = li.LineTotal()
	return li, nil
}

func (s *OrderService) Get(ctx context.Context, id string) (domain.Order, error) {
	return s.orders.Get(ctx, id)
}

func (s *OrderService) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// UpdateStatus overwrites the status with any known value.
func (s *OrderService) UpdateStatus(ctx context.Context, id, status string) (domain.Order, error) {
	st, ok := domain.ParseStatus(status)
	if !ok {
		return domain.Order{}, domain.NewValidationError("неизвестный статус: %s", status)
	}
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	if !domain.CanTransition(o.Status, st) {
		s.logger.Warn("status overwrite out of sequence",
			zap.String("order_number", o.OrderNumber),
			zap.String("from", string(o.Status)),
			zap.String("to", string(st)),
		)
	}
	o.ApplyStatus(st, s.now())
	if err := s.orders.SaveStatus(ctx, o); err != nil {
		return domain.Order{}, err
	}
	s.logger.Info("order status updated", zap.String("order_number", o.OrderNumber), zap.String("status", string(st)))
	return o, nil
}

// ConfirmPayment marks the order paid and notifies both sides.
func (s *OrderService) ConfirmPayment(ctx context.Context, id string, userID int64) (domain.Order, error) {
	o, err := s.UpdateStatus(ctx, id, string(domain.StatusPaid))
	if err != nil {
		return domain.Order{}, err
	}
	if userID == 0 {
		userID = o.UserID
	}
	if err := s.router.PaymentConfirmed(ctx, o, userID); err != nil {
		s.metrics.NotifyFailed.WithLabelValues("payment").Inc()
		s.logger.Error("payment confirmation notification failed", zap.String("order_number", o.OrderNumber), zap.Error(err))
	}
	return o, nil
}

// Route re-sends the notifications of an existing order.
func (s *OrderService) Route(ctx context.Context, id string) error {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.router.Route(ctx, o); err != nil {
		s.metrics.NotifyFailed.WithLabelValues("route").Inc()
		s.logger.Error("order notification failed", zap.String("order_number", o.OrderNumber), zap.Error(err))
	}
	return nil
}

// NotifyManager forwards an order to the administrator. Unlike the automatic
// routing, a delivery failure is returned to the caller.
func (s *OrderService) NotifyManager(ctx context.Context, id string) error {
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.router.NotifyManager(ctx, o); err != nil {
		s.metrics.NotifyFailed.WithLabelValues("manager").Inc()
		return err
	}
	return nil
}

// NotifyManagerOrder forwards an order posted by the client as is, without a
// store lookup. Totals are recomputed from the posted lines.
func (s *OrderService) NotifyManagerOrder(ctx context.Context, in ManagerOrderInput) error {
	if err := s.check(in); err != nil {
		return err
	}
	items, err := lineItems(in.Items)
	if err != nil {
		return err
	}
	o := domain.Order{
		OrderNumber: strings.TrimSpace(in.OrderNumber),
		Items:       items,
		Customer:    customer(in.Customer),
	}
	o.CalculateTotal()
	o.IsFromMoscow = domain.IsMoscowRegion(o.Customer.City, o.Customer.Region)
	if err := s.router.NotifyManager(ctx, o); err != nil {
		s.metrics.NotifyFailed.WithLabelValues("manager").Inc()
		return err
	}
	return nil
}

func (s *OrderService) SavedData(ctx context.Context, userID int64) (domain.SavedData, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return domain.SavedData{}, err
	}
	return u.SavedData, nil
}

func (s *OrderService) Cart(ctx context.Context, userID int64) (domain.Cart, error) {
	return s.carts.Get(ctx, userID)
}

func (s *OrderService) SaveCart(ctx context.Context, userID int64, items []domain.CartItem) (domain.Cart, error) {
	kept := make([]domain.CartItem, 0, len(items))
	for _, it := range items {
		if it.ProductID == "" || it.Quantity <= 0 {
			continue
		}
		kept = append(kept, it)
	}
	cart := domain.Cart{UserID: userID, Items: kept, UpdatedAt: s.now()}
	if len(kept) == 0 {
		if err := s.carts.Clear(ctx, userID); err != nil {
			return domain.Cart{}, domain.Dependency("cart store", err)
		}
		return cart, nil
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return domain.Cart{}, domain.Dependency("cart store", err)
	}
	return cart, nil
}
