package constants

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalPayment(t *testing.T) {
	tests := map[string]PaymentMethod{
		"04":                           PaymentCreditCard,
		"28 - Tarjeta de debito":       PaymentDebitCard,
		"EFECTIVO":                     PaymentCash,
		"Pagado con VISA ****1234":     PaymentCreditCard,
		"TARJETA DE DÉBITO":            PaymentDebitCard,
		"tarjeta_credito":              PaymentCreditCard,
		"Transferencia SPEI":           PaymentBankTransfer,
		"MASTER CARD":                  PaymentCreditCard,
		"AMERICAN EXPRESS":             PaymentCreditCard,
		"cash/efectivo":                PaymentCash,
		"99":                           "",
		"":                             "",
		"AV. LAZARO CARDENAS 1200":     "",
		"TICKET REVISADO POR GERENCIA": "",
		"CREDITOS HIPOTECARIOS SA":     "",
		"EXPRESS":                      "",
	}
	for in, want := range tests {
		got, ok := CanonicalPayment(in)
		assert.Equal(t, want != "", ok, in)
		assert.Equal(t, want, got, in)
	}
}

func TestPaymentKeyword_IgnoresCodes(t *testing.T) {
	_, ok := PaymentKeyword("04")
	assert.False(t, ok)

	pm, ok := PaymentKeyword("PAGO CON TARJETA")
	assert.True(t, ok)
	assert.Equal(t, PaymentCreditCard, pm)
}
