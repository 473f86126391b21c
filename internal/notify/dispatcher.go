package notify

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"mactabak/internal/domain"
	"mactabak/internal/payment"
)

// QRGenerator renders and later removes payment QR images.
type QRGenerator interface {
	Generate(o domain.Order) (payment.Code, error)
	ScheduleRemoval(path string) *time.Timer
}

type Dispatcher struct {
	logger       *zap.Logger
	messenger    Messenger
	qr           QRGenerator
	adminID      int64
	webAppURL    string
	managerEmail string
}

func NewDispatcher(logger *zap.Logger, messenger Messenger, qr QRGenerator, adminID int64, webAppURL, managerEmail string) *Dispatcher {
	return &Dispatcher{
		logger:       logger,
		messenger:    messenger,
		qr:           qr,
		adminID:      adminID,
		webAppURL:    webAppURL,
		managerEmail: managerEmail,
	}
}

// Route sends a freshly created order down its fulfilment branch: Moscow orders
// go to the manager, everything else gets a payment QR. An order without a
// Telegram user only reaches the manager.
func (d *Dispatcher) Route(ctx context.Context, o domain.Order) error {
	if o.UserID == 0 {
		d.logger.Warn("order has no telegram user, forwarding to manager only",
			zap.String("order_number", o.OrderNumber))
		return d.NotifyManager(ctx, o)
	}
	if o.IsFromMoscow {
		return d.routeToManager(ctx, o)
	}
	return d.sendPaymentCode(ctx, o)
}

func (d *Dispatcher) routeToManager(ctx context.Context, o domain.Order) error {
	var errs error
	if err := d.NotifyManager(ctx, o); err != nil {
		errs = multierr.Append(errs, err)
	}
	err := d.messenger.SendMessage(ctx, o.UserID, Message{
		Text:   AcceptedMessage(o),
		Button: &WebAppButton{Text: "🛒 Вернуться в каталог", URL: d.webAppURL},
	})
	if err != nil {
		errs = multierr.Append(errs, domain.Dependency("telegram", err))
	}
	return errs
}

func (d *Dispatcher) sendPaymentCode(ctx context.Context, o domain.Order) error {
	code, err := d.qr.Generate(o)
	if err != nil {
		return fmt.Errorf("generate payment qr: %w", err)
	}
	d.qr.ScheduleRemoval(code.Path)

	err = d.messenger.SendPhoto(ctx, o.UserID, code.Path, Message{
		Text:     PaymentMessage(o, d.managerEmail),
		Markdown: true,
	})
	if err != nil {
		return domain.Dependency("telegram", err)
	}
	d.logger.Info("payment qr sent",
		zap.String("order_number", o.OrderNumber),
		zap.Int64("user_id", o.UserID),
		zap.Int64("sum", code.Payload.Sum),
	)
	return nil
}

// NotifyManager sends the itemised order to the administrator chat.
func (d *Dispatcher) NotifyManager(ctx context.Context, o domain.Order) error {
	if d.adminID == 0 {
		return domain.Dependency("telegram", fmt.Errorf("admin chat is not configured"))
	}
	err := d.messenger.SendMessage(ctx, d.adminID, Message{Text: ManagerMessage(o), Markdown: true})
	if err != nil {
		return domain.Dependency("telegram", err)
	}
	return nil
}

// PaymentConfirmed tells the customer and the administrator that the order is paid.
func (d *Dispatcher) PaymentConfirmed(ctx context.Context, o domain.Order, userID int64) error {
	var errs error
	if err := d.messenger.SendMessage(ctx, userID, Message{Text: PaymentConfirmedMessage()}); err != nil {
		errs = multierr.Append(errs, domain.Dependency("telegram", err))
	}
	if d.adminID != 0 {
		if err := d.messenger.SendMessage(ctx, d.adminID, Message{Text: PaidManagerMessage(o)}); err != nil {
			errs = multierr.Append(errs, domain.Dependency("telegram", err))
		}
	}
	return errs
}
