package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// AccountKind names a deposit account held by a customer, e.g. "savings".
type AccountKind string

const (
	AccountSavings AccountKind = "savings"
	AccountCurrent AccountKind = "current"
)

// LoanKind names a loan product, e.g. "home".
type LoanKind string

const (
	LoanHome     LoanKind = "home"
	LoanCar      LoanKind = "car"
	LoanPersonal LoanKind = "personal"
)

// CardKind distinguishes credit cards from debit cards.
type CardKind string

const (
	CardCredit CardKind = "credit"
	CardDebit  CardKind = "debit"
)

// Label returns the kind formatted for display ("savings" -> "Savings").
func (k AccountKind) Label() string { return label(string(k)) }

// Label returns the kind formatted for display ("home" -> "Home").
func (k LoanKind) Label() string { return label(string(k)) }

// Label returns the kind formatted for display ("credit" -> "Credit").
func (k CardKind) Label() string { return label(string(k)) }

// label title-cases s. Casers are stateful, so one is built per call.
func label(s string) string {
	return cases.Title(language.English).String(s)
}

// Account is the full financial profile of one customer.
// It is read-only once it leaves the ledger.
type Account struct {
	ID          string
	Name        string
	Accounts    map[AccountKind]*BankAccount
	Cards       []Card
	Loans       map[LoanKind]Loan
	CreditScore int
}

// BankAccount is a single deposit account.
type BankAccount struct {
	Balance      decimal.Decimal
	MaskedNumber string
	Transactions []Transaction // most recent first
}

// Transaction is one ledger movement. Positive amounts are credits,
// negative amounts are debits.
type Transaction struct {
	Date        time.Time
	Description string
	Amount      decimal.Decimal
}

// Card holds the fields of a credit or debit card. Credit-only fields are
// Limit, Outstanding and DueDate; debit-only fields are LinkedAccount and
// DailyLimit.
type Card struct {
	Kind         CardKind
	MaskedNumber string

	Limit       decimal.Decimal
	Outstanding decimal.Decimal
	DueDate     time.Time

	LinkedAccount AccountKind
	DailyLimit    decimal.Decimal
}

// Loan is an outstanding loan. InterestRate is a yearly percentage.
type Loan struct {
	Principal          decimal.Decimal
	MonthlyInstallment decimal.Decimal
	Remaining          decimal.Decimal
	InterestRate       decimal.Decimal
}

// AccountKinds returns the account kinds present, sorted by name so
// rendering order is stable.
func (a Account) AccountKinds() []AccountKind {
	kinds := make([]AccountKind, 0, len(a.Accounts))
	for k := range a.Accounts {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// LoanKinds returns the loan kinds present, sorted by name.
func (a Account) LoanKinds() []LoanKind {
	kinds := make([]LoanKind, 0, len(a.Loans))
	for k := range a.Loans {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Clone returns a deep copy of the account so callers can never mutate
// shared ledger state.
func (a Account) Clone() Account {
	out := a
	if a.Accounts != nil {
		out.Accounts = make(map[AccountKind]*BankAccount, len(a.Accounts))
		for k, ba := range a.Accounts {
			if ba == nil {
				continue
			}
			cp := *ba
			cp.Transactions = append([]Transaction(nil), ba.Transactions...)
			out.Accounts[k] = &cp
		}
	}
	out.Cards = append([]Card(nil), a.Cards...)
	if a.Loans != nil {
		out.Loans = make(map[LoanKind]Loan, len(a.Loans))
		for k, l := range a.Loans {
			out.Loans[k] = l
		}
	}
	return out
}
