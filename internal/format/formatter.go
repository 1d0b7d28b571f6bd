// Package format renders account data into chat-ready markdown, one
// renderer per intent.
package format

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dvloznov/bank-assistant/internal/domain"
	"github.com/dvloznov/bank-assistant/internal/intent"
	"github.com/shopspring/decimal"
)

const (
	// MaxTransactions is the number of transactions shown per account kind.
	MaxTransactions = 5

	timestampLayout = "Jan 2, 2006 3:04 PM"
	dateLayout      = "Jan 2, 2006"

	dailyTransferLimit = 200000
)

// DailyTransferLimit returns the advertised per-day transfer ceiling.
func DailyTransferLimit() decimal.Decimal {
	return decimal.NewFromInt(dailyTransferLimit)
}

type renderFunc func(f *Formatter, acc domain.Account, b *strings.Builder)

var renderers = map[intent.Intent]renderFunc{
	intent.Balance:      renderBalance,
	intent.Transactions: renderTransactions,
	intent.Cards:        renderCards,
	intent.Loans:        renderLoans,
	intent.Transfer:     renderTransfer,
}

var relatedServices = map[intent.Intent][]string{
	intent.Balance: {
		"Set up low-balance alerts",
		"Open a fixed deposit",
		"Download an account statement",
	},
	intent.Transactions: {
		"Download a detailed statement",
		"Dispute a transaction",
		"Set up spending alerts",
	},
	intent.Cards: {
		"Block or replace a card",
		"Change your card PIN",
		"Request a credit limit increase",
	},
	intent.Loans: {
		"Prepay or foreclose a loan",
		"Check pre-approved loan offers",
		"Download an interest certificate",
	},
	intent.Transfer: {
		"Add a new beneficiary",
		"Schedule a recurring transfer",
		"Track a pending transfer",
	},
}

// Formatter renders intents against account data. It is safe for
// concurrent use.
type Formatter struct {
	symbol string
	now    func() time.Time
}

// New creates a formatter using the given currency symbol and clock.
func New(symbol string, now func() time.Time) *Formatter {
	if now == nil {
		now = time.Now
	}
	return &Formatter{symbol: symbol, now: now}
}

// NewDefault creates a formatter with the default currency symbol and the
// wall clock.
func NewDefault() *Formatter {
	return New(domain.DefaultCurrencySymbol, time.Now)
}

// Format renders the response for in using acc. It returns an empty string
// for an intent with no renderer.
func (f *Formatter) Format(in intent.Intent, acc domain.Account) string {
	render, ok := renderers[in]
	if !ok {
		return ""
	}

	var b strings.Builder
	render(f, acc, &b)
	writeRelated(&b, relatedServices[in])
	return strings.TrimRight(b.String(), "\n")
}

func (f *Formatter) money(amount decimal.Decimal) string {
	return domain.FormatMoney(amount, f.symbol)
}

func writeRelated(b *strings.Builder, services []string) {
	b.WriteString("\n**Related services:**\n")
	for _, s := range services {
		b.WriteString("- " + s + "\n")
	}
}

func renderBalance(f *Formatter, acc domain.Account, b *strings.Builder) {
	b.WriteString("### Account Balance\n\n")

	kinds := acc.AccountKinds()
	if len(kinds) == 0 {
		b.WriteString("No accounts found.\n")
	}
	for _, k := range kinds {
		ba := acc.Accounts[k]
		if ba == nil {
			continue
		}
		fmt.Fprintf(b, "**%s Account** (%s)\n", k.Label(), ba.MaskedNumber)
		fmt.Fprintf(b, "- Available balance: %s\n\n", f.money(ba.Balance))
	}

	fmt.Fprintf(b, "_Last updated: %s_\n", f.now().Format(timestampLayout))
}

func renderTransactions(f *Formatter, acc domain.Account, b *strings.Builder) {
	b.WriteString("### Recent Transactions\n\n")

	kinds := acc.AccountKinds()
	if len(kinds) == 0 {
		b.WriteString("No accounts found.\n")
	}
	for _, k := range kinds {
		ba := acc.Accounts[k]
		if ba == nil {
			continue
		}
		fmt.Fprintf(b, "**%s Account** (%s)\n", k.Label(), ba.MaskedNumber)

		recent := RecentTransactions(ba.Transactions, MaxTransactions)
		if len(recent) == 0 {
			b.WriteString("No recent transactions.\n\n")
			continue
		}
		for i, tx := range recent {
			fmt.Fprintf(b, "%d. %s | %s | %s\n",
				i+1, tx.Date.Format(dateLayout), tx.Description, domain.FormatSigned(tx.Amount, f.symbol))
		}
		b.WriteString("\n")
	}
}

// RecentTransactions returns at most limit transactions, most recent first.
// The input slice is not modified.
func RecentTransactions(txs []domain.Transaction, limit int) []domain.Transaction {
	sorted := append([]domain.Transaction(nil), txs...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.After(sorted[j].Date)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

func renderCards(f *Formatter, acc domain.Account, b *strings.Builder) {
	b.WriteString("### Your Cards\n\n")

	if len(acc.Cards) == 0 {
		b.WriteString("No cards found.\n")
	}
	for _, c := range acc.Cards {
		// Re-mask so a raw number can never leak through.
		fmt.Fprintf(b, "**%s Card** (%s)\n", c.Kind.Label(), domain.MaskNumber(c.MaskedNumber))

		switch c.Kind {
		case domain.CardCredit:
			fmt.Fprintf(b, "- Credit limit: %s\n", f.money(c.Limit))
			fmt.Fprintf(b, "- Outstanding: %s\n", f.money(c.Outstanding))
			fmt.Fprintf(b, "- Available credit: %s\n", f.money(c.Limit.Sub(c.Outstanding)))
			due := "Not scheduled"
			if !c.DueDate.IsZero() {
				due = c.DueDate.Format(dateLayout)
			}
			fmt.Fprintf(b, "- Payment due: %s\n", due)
		case domain.CardDebit:
			fmt.Fprintf(b, "- Linked account: %s\n", c.LinkedAccount.Label())
			fmt.Fprintf(b, "- Daily limit: %s\n", f.money(c.DailyLimit))
		}
		b.WriteString("\n")
	}
}

func renderLoans(f *Formatter, acc domain.Account, b *strings.Builder) {
	b.WriteString("### Loan Summary\n\n")

	kinds := acc.LoanKinds()
	if len(kinds) == 0 {
		b.WriteString("You have no active loans.\n\n")
	}
	for _, k := range kinds {
		l := acc.Loans[k]
		fmt.Fprintf(b, "**%s Loan**\n", k.Label())
		fmt.Fprintf(b, "- Principal: %s\n", f.money(l.Principal))
		fmt.Fprintf(b, "- Monthly installment (EMI): %s\n", f.money(l.MonthlyInstallment))
		fmt.Fprintf(b, "- Remaining balance: %s\n", f.money(l.Remaining))
		fmt.Fprintf(b, "- Interest rate: %s%% p.a.\n\n", l.InterestRate.StringFixed(2))
	}

	fmt.Fprintf(b, "**Credit score:** %d (%s)\n", acc.CreditScore, CreditScoreLabel(acc.CreditScore))
}

// CreditScoreLabel maps a credit score onto a qualitative label.
func CreditScoreLabel(score int) string {
	switch {
	case score >= 750:
		return "Excellent"
	case score >= 700:
		return "Good"
	case score >= 650:
		return "Fair"
	default:
		return "Needs Improvement"
	}
}

func renderTransfer(f *Formatter, _ domain.Account, b *strings.Builder) {
	b.WriteString("### Fund Transfer\n\n")
	b.WriteString("To transfer money:\n")
	b.WriteString("1. Log in to net banking or the mobile app.\n")
	b.WriteString("2. Open **Transfers** and add or pick a beneficiary.\n")
	b.WriteString("3. Choose NEFT, RTGS or IMPS, enter the amount and confirm with the OTP.\n\n")
	fmt.Fprintf(b, "Daily transfer limit: %s\n", f.money(DailyTransferLimit()))
	b.WriteString("Never share your OTP or PIN with anyone, including bank staff.\n")
}
