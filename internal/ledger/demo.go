package ledger

import (
	"time"

	"github.com/dvloznov/bank-assistant/internal/domain"
	"github.com/shopspring/decimal"
)

// Demo returns the built-in demo ledger. The default account belongs to
// DefaultUserID; a second customer exists under "user_2".
func Demo() *Memory {
	m, err := NewMemory(map[string]domain.Account{
		DefaultUserID: demoAccount(),
		"user_2":      secondAccount(),
	}, DefaultUserID)
	if err != nil {
		// The literal above always contains the default id.
		panic(err)
	}
	return m
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func day(s string) time.Time {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func demoAccount() domain.Account {
	return domain.Account{
		ID:   DefaultUserID,
		Name: "Alex",
		Accounts: map[domain.AccountKind]*domain.BankAccount{
			domain.AccountSavings: {
				Balance:      d("25000.00"),
				MaskedNumber: domain.MaskNumber("50100234567890"),
				Transactions: []domain.Transaction{
					{Date: day("2026-10-14"), Description: "Amazon Purchase", Amount: d("-1200.00")},
					{Date: day("2026-10-12"), Description: "ATM Withdrawal", Amount: d("-5000.00")},
					{Date: day("2026-10-10"), Description: "Salary Credit", Amount: d("45000.00")},
					{Date: day("2026-10-08"), Description: "Electricity Bill", Amount: d("-1850.75")},
					{Date: day("2026-10-05"), Description: "Grocery Store", Amount: d("-2340.20")},
					{Date: day("2026-10-02"), Description: "Interest Credit", Amount: d("312.40")},
					{Date: day("2026-09-28"), Description: "Mobile Recharge", Amount: d("-499.00")},
				},
			},
			domain.AccountCurrent: {
				Balance:      d("142350.60"),
				MaskedNumber: domain.MaskNumber("50200987654321"),
				Transactions: []domain.Transaction{
					{Date: day("2026-10-13"), Description: "Client Payment", Amount: d("60000.00")},
					{Date: day("2026-10-09"), Description: "Office Rent", Amount: d("-35000.00")},
					{Date: day("2026-10-01"), Description: "GST Payment", Amount: d("-8420.00")},
				},
			},
		},
		Cards: []domain.Card{
			{
				Kind:         domain.CardCredit,
				MaskedNumber: domain.MaskNumber("4111111111114321"),
				Limit:        d("150000.00"),
				Outstanding:  d("23450.00"),
				DueDate:      day("2026-11-05"),
			},
			{
				Kind:          domain.CardDebit,
				MaskedNumber:  domain.MaskNumber("5500000000008765"),
				LinkedAccount: domain.AccountSavings,
				DailyLimit:    d("50000.00"),
			},
		},
		Loans: map[domain.LoanKind]domain.Loan{
			domain.LoanHome: {
				Principal:          d("3500000.00"),
				MonthlyInstallment: d("32500.00"),
				Remaining:          d("2850000.00"),
				InterestRate:       d("8.5"),
			},
			domain.LoanCar: {
				Principal:          d("800000.00"),
				MonthlyInstallment: d("16200.00"),
				Remaining:          d("410000.00"),
				InterestRate:       d("9.25"),
			},
		},
		CreditScore: 780,
	}
}

func secondAccount() domain.Account {
	return domain.Account{
		ID:   "user_2",
		Name: "Priya",
		Accounts: map[domain.AccountKind]*domain.BankAccount{
			domain.AccountSavings: {
				Balance:      d("8420.15"),
				MaskedNumber: domain.MaskNumber("50100111122223"),
				Transactions: []domain.Transaction{
					{Date: day("2026-10-11"), Description: "UPI Transfer", Amount: d("-750.00")},
					{Date: day("2026-10-03"), Description: "Stipend Credit", Amount: d("15000.00")},
				},
			},
		},
		Cards: []domain.Card{
			{
				Kind:          domain.CardDebit,
				MaskedNumber:  domain.MaskNumber("6070123412345555"),
				LinkedAccount: domain.AccountSavings,
				DailyLimit:    d("25000.00"),
			},
		},
		Loans: map[domain.LoanKind]domain.Loan{
			domain.LoanPersonal: {
				Principal:          d("200000.00"),
				MonthlyInstallment: d("6650.00"),
				Remaining:          d("120400.00"),
				InterestRate:       d("12.75"),
			},
		},
		CreditScore: 688,
	}
}
