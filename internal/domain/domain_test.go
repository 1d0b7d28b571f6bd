package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"0", "₹0.00"},
		{"5", "₹5.00"},
		{"999.999", "₹1,000.00"},
		{"25000", "₹25,000.00"},
		{"125000.5", "₹125,000.50"},
		{"1234567.891", "₹1,234,567.89"},
		{"-1200", "-₹1,200.00"},
		{"-0.001", "₹0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			got := FormatMoney(decimal.RequireFromString(tt.amount), DefaultCurrencySymbol)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatSigned(t *testing.T) {
	assert.Equal(t, "+₹500.00", FormatSigned(decimal.NewFromInt(500), "₹"))
	assert.Equal(t, "-₹1,200.00", FormatSigned(decimal.NewFromInt(-1200), "₹"))
	assert.Equal(t, "$0.00", FormatSigned(decimal.Zero, "$"))
}

func TestMaskNumber(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"card number", "4111111111111111", "XXXX-XXXX-XXXX-1111"},
		{"with separators", "4532 7788 1020 9876", "XXXX-XXXX-XXXX-9876"},
		{"already masked", "XXXX-XXXX-XXXX-4321", "XXXX-XXXX-XXXX-4321"},
		{"short", "12", "XXXX-XXXX-XXXX-XXXX"},
		{"empty", "", "XXXX-XXXX-XXXX-XXXX"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MaskNumber(tt.raw))
		})
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole("user")
	require.NoError(t, err)
	assert.Equal(t, RoleUser, r)

	_, err = ParseRole("system")
	assert.Error(t, err)
}

func TestAccountClone(t *testing.T) {
	orig := Account{
		ID: "u1",
		Accounts: map[AccountKind]*BankAccount{
			AccountSavings: {Balance: decimal.NewFromInt(10), Transactions: []Transaction{{Description: "a"}}},
		},
		Loans: map[LoanKind]Loan{LoanHome: {Principal: decimal.NewFromInt(1)}},
		Cards: []Card{{Kind: CardDebit}},
	}

	cp := orig.Clone()
	cp.Accounts[AccountSavings].Balance = decimal.NewFromInt(99)
	cp.Accounts[AccountSavings].Transactions[0].Description = "changed"
	cp.Cards[0].Kind = CardCredit
	delete(cp.Loans, LoanHome)

	assert.True(t, orig.Accounts[AccountSavings].Balance.Equal(decimal.NewFromInt(10)))
	assert.Equal(t, "a", orig.Accounts[AccountSavings].Transactions[0].Description)
	assert.Equal(t, CardDebit, orig.Cards[0].Kind)
	assert.Contains(t, orig.Loans, LoanHome)
}

func TestKindsSorted(t *testing.T) {
	a := Account{
		Accounts: map[AccountKind]*BankAccount{AccountSavings: {}, AccountCurrent: {}},
		Loans:    map[LoanKind]Loan{LoanPersonal: {}, LoanCar: {}, LoanHome: {}},
	}
	assert.Equal(t, []AccountKind{AccountCurrent, AccountSavings}, a.AccountKinds())
	assert.Equal(t, []LoanKind{LoanCar, LoanHome, LoanPersonal}, a.LoanKinds())
	assert.Equal(t, "Savings", AccountSavings.Label())
}
