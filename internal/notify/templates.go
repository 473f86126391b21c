package notify

import (
	"fmt"
	"strings"

	"mactabak/internal/domain"
)

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// md escapes user input for Telegram's legacy Markdown.
func md(s string) string {
	return markdownEscaper.Replace(s)
}

func ManagerMessage(o domain.Order) string {
	c := o.Customer
	var b strings.Builder
	fmt.Fprintf(&b, "📦 *НОВЫЙ ЗАКАЗ №%s*\n\n", md(o.OrderNumber))
	b.WriteString("👤 *Клиент:*\n")
	fmt.Fprintf(&b, "ФИО: %s\n", md(c.FullName))
	fmt.Fprintf(&b, "Телефон: %s\n", md(c.Phone))
	fmt.Fprintf(&b, "Email: %s\n", md(c.Email))
	fmt.Fprintf(&b, "Город: %s\n", md(c.City))
	if c.Region != "" {
		fmt.Fprintf(&b, "Регион: %s\n", md(c.Region))
	}
	fmt.Fprintf(&b, "Адрес: %s\n", md(c.Address))
	fmt.Fprintf(&b, "Доставка: %s\n\n", md(c.DeliveryMethod))

	b.WriteString("📋 *Состав заказа:*\n")
	for _, it := range o.Items {
		fmt.Fprintf(&b, "• %s\n", md(it.Name))
		if it.Unit == domain.UnitWeight {
			fmt.Fprintf(&b, "  %d x %dг x %d₽ = %d₽\n", it.Quantity, it.Weight, it.Price, it.Total)
		} else {
			fmt.Fprintf(&b, "  %d шт x %d₽ = %d₽\n", it.Quantity, it.Price, it.Total)
		}
	}

	fmt.Fprintf(&b, "\n📦 Стоимость товаров: %d₽\n", o.Subtotal)
	fmt.Fprintf(&b, "🚚 Доставка: %d₽\n", o.DeliveryPrice)
	fmt.Fprintf(&b, "💰 *ИТОГО: %d₽*", o.Total)

	if c.Comment != "" {
		fmt.Fprintf(&b, "\n\n💬 Комментарий: %s", md(c.Comment))
	}
	return b.String()
}

func AcceptedMessage(o domain.Order) string {
	return fmt.Sprintf("✅ Ваш заказ №%s принят!\n\n"+
		"С вами свяжется менеджер для выставления счета.\n"+
		"Ожидайте звонка или сообщения.", o.OrderNumber)
}

func PaymentMessage(o domain.Order, managerEmail string) string {
	return fmt.Sprintf(`📦 *Заказ №%s подтвержден*

Добрый день! Пожалуйста, прочитайте всю информацию до конца ‼️‼️‼️👇🏻👇🏻👇🏻

Предварительная дата отправки вашего заказа через 1-7 дней!
(Рассылка трек-номеров в течение 2х дней после отправки!)

‼️*ВНИМАНИЕ❗️ВАЖНО*‼️
После оплаты заказа *ОТПРАВЬТЕ ЧЕК* на почту: %s
В письме *УКАЖИТЕ НОМЕР ЗАКАЗА*!!!

🚫*ПИСЬМО С ЧЕКОМ ДОСТАТОЧНО ОТПРАВИТЬ ОДИН РАЗ*‼️‼️
(не нужно присылать один и тот же чек несколько раз)

⚠️ *QR-код нужно отсканировать в приложении банка*

📌*В КОММЕНТАРИЯХ К ПЛАТЕЖУ НИЧЕГО ПИСАТЬ НЕ НУЖНО*‼️‼️‼️

(!ВАЖНО! НЕ ДЕЛАТЬ проверочные платежи 1,2,3, 10 рублей!)

💰 *Сумма к оплате: %d₽*

Благодарим за покупку! 🙏`, md(o.OrderNumber), md(managerEmail), o.Total)
}

func PaymentConfirmedMessage() string {
	return "✅ Оплата подтверждена!\n\n" +
		"Ваш заказ передан в обработку.\n" +
		"Ожидайте уведомления об отправке."
}

func PaidManagerMessage(o domain.Order) string {
	return fmt.Sprintf("💰 Заказ №%s оплачен!", o.OrderNumber)
}
