// Package payment builds bank-transfer QR codes in the ST00012 format
// (GOST R 56042-2014) for orders paid outside Moscow.
package payment

import (
	"strconv"
	"strings"

	"mactabak/internal/domain"
)

const formatHeader = "ST00012"

// Requisites of the payee.
type Requisites struct {
	Name     string
	Account  string
	BankName string
	BIC      string
	INN      string
}

type Payload struct {
	Name        string
	PersonalAcc string
	BankName    string
	BIC         string
	Sum         int64 // kopecks
	Purpose     string
	PayeeINN    string
}

// PayloadFor builds the payload for an order; the sum is the order total in kopecks.
func PayloadFor(r Requisites, o domain.Order) Payload {
	return Payload{
		Name:        r.Name,
		PersonalAcc: r.Account,
		BankName:    r.BankName,
		BIC:         r.BIC,
		Sum:         o.Total * 100,
		Purpose:     "Оплата заказа " + o.OrderNumber,
		PayeeINN:    r.INN,
	}
}

// String renders the pipe-delimited key=value string encoded into the QR.
func (p Payload) String() string {
	fields := []struct{ key, value string }{
		{"Name", p.Name},
		{"PersonalAcc", p.PersonalAcc},
		{"BankName", p.BankName},
		{"BIC", p.BIC},
		{"Sum", strconv.FormatInt(p.Sum, 10)},
		{"Purpose", p.Purpose},
		{"PayeeINN", p.PayeeINN},
	}

	var b strings.Builder
	b.WriteString(formatHeader)
	for _, f := range fields {
		b.WriteByte('|')
		b.WriteString(f.key)
		b.WriteByte('=')
		// the separator must not appear inside a value
		b.WriteString(strings.ReplaceAll(f.value, "|", " "))
	}
	return b.String()
}

// ParsePayload splits an ST00012 string back into its key/value pairs.
func ParsePayload(s string) (map[string]string, bool) {
	parts := strings.Split(s, "|")
	if len(parts) == 0 || parts[0] != formatHeader {
		return nil, false
	}
	out := make(map[string]string, len(parts)-1)
	for _, part := range parts[1:] {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return nil, false
		}
		out[k] = v
	}
	return out, true
}
