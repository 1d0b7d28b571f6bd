package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dvloznov/bank-assistant/internal/domain"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// ErrEmptySnapshot is returned when a snapshot holds no accounts.
var ErrEmptySnapshot = errors.New("ledger snapshot contains no accounts")

// Snapshot is the JSON document a ledger can be loaded from.
// Account and card numbers may be given in full; they are masked on load.
type Snapshot struct {
	DefaultUserID string            `json:"default_user_id"`
	Accounts      []snapshotAccount `json:"accounts"`
}

type snapshotAccount struct {
	ID          string                         `json:"id"`
	Name        string                         `json:"name"`
	CreditScore int                            `json:"credit_score"`
	Accounts    map[string]snapshotBankAccount `json:"accounts"`
	Cards       []snapshotCard                 `json:"cards"`
	Loans       map[string]snapshotLoan        `json:"loans"`
}

type snapshotBankAccount struct {
	Balance      decimal.Decimal       `json:"balance"`
	Number       string                `json:"number"`
	Transactions []snapshotTransaction `json:"transactions"`
}

type snapshotTransaction struct {
	Date        string          `json:"date"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

type snapshotCard struct {
	Kind          string          `json:"kind"`
	Number        string          `json:"number"`
	Limit         decimal.Decimal `json:"limit"`
	Outstanding   decimal.Decimal `json:"outstanding"`
	DueDate       string          `json:"due_date"`
	LinkedAccount string          `json:"linked_account"`
	DailyLimit    decimal.Decimal `json:"daily_limit"`
}

type snapshotLoan struct {
	Principal          decimal.Decimal `json:"principal"`
	MonthlyInstallment decimal.Decimal `json:"monthly_installment"`
	Remaining          decimal.Decimal `json:"remaining"`
	InterestRate       decimal.Decimal `json:"interest_rate"`
}

// ObjectFetcher downloads an object from cloud storage.
type ObjectFetcher interface {
	FetchFromGCS(ctx context.Context, gcsURI string) ([]byte, error)
}

// Load builds a repository from source. An empty source yields the demo
// ledger, a "gs://" URI is fetched with fetcher, anything else is read as a
// local file path.
func Load(ctx context.Context, source string, fetcher ObjectFetcher) (*Memory, error) {
	switch {
	case source == "":
		return Demo(), nil
	case strings.HasPrefix(source, "gs://"):
		if fetcher == nil {
			return nil, fmt.Errorf("Load: no storage fetcher configured for %s", source)
		}
		data, err := fetcher.FetchFromGCS(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("Load: fetch snapshot: %w", err)
		}
		return Parse(data)
	default:
		return LoadFile(source)
	}
}

// LoadFile reads a JSON snapshot from path.
func LoadFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadFile: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a JSON snapshot into a repository.
func Parse(data []byte) (*Memory, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("Parse: unmarshal snapshot: %w", err)
	}
	if len(snap.Accounts) == 0 {
		return nil, ErrEmptySnapshot
	}

	accounts := make(map[string]domain.Account, len(snap.Accounts))
	for i, sa := range snap.Accounts {
		if sa.ID == "" {
			return nil, fmt.Errorf("Parse: account %d has no id", i)
		}
		acc, err := sa.toDomain()
		if err != nil {
			return nil, fmt.Errorf("Parse: account %q: %w", sa.ID, err)
		}
		accounts[sa.ID] = acc
	}

	defaultID := snap.DefaultUserID
	if defaultID == "" {
		defaultID = snap.Accounts[0].ID
	}
	return NewMemory(accounts, defaultID)
}

func (sa snapshotAccount) toDomain() (domain.Account, error) {
	acc := domain.Account{
		ID:          sa.ID,
		Name:        sa.Name,
		CreditScore: sa.CreditScore,
		Accounts:    make(map[domain.AccountKind]*domain.BankAccount, len(sa.Accounts)),
		Loans:       make(map[domain.LoanKind]domain.Loan, len(sa.Loans)),
	}

	for kind, sba := range sa.Accounts {
		ba := &domain.BankAccount{
			Balance:      sba.Balance,
			MaskedNumber: domain.MaskNumber(sba.Number),
		}
		for _, st := range sba.Transactions {
			date, err := time.Parse(dateLayout, st.Date)
			if err != nil {
				return domain.Account{}, fmt.Errorf("transaction %q: invalid date: %w", st.Description, err)
			}
			ba.Transactions = append(ba.Transactions, domain.Transaction{
				Date:        date,
				Description: st.Description,
				Amount:      st.Amount,
			})
		}
		acc.Accounts[domain.AccountKind(strings.ToLower(kind))] = ba
	}

	for _, sc := range sa.Cards {
		card := domain.Card{
			Kind:         domain.CardKind(strings.ToLower(sc.Kind)),
			MaskedNumber: domain.MaskNumber(sc.Number),
		}
		switch card.Kind {
		case domain.CardCredit:
			card.Limit = sc.Limit
			card.Outstanding = sc.Outstanding
			if sc.DueDate != "" {
				due, err := time.Parse(dateLayout, sc.DueDate)
				if err != nil {
					return domain.Account{}, fmt.Errorf("card due date: %w", err)
				}
				card.DueDate = due
			}
		case domain.CardDebit:
			card.LinkedAccount = domain.AccountKind(strings.ToLower(sc.LinkedAccount))
			card.DailyLimit = sc.DailyLimit
		default:
			return domain.Account{}, fmt.Errorf("unknown card kind %q", sc.Kind)
		}
		acc.Cards = append(acc.Cards, card)
	}

	for kind, sl := range sa.Loans {
		acc.Loans[domain.LoanKind(strings.ToLower(kind))] = domain.Loan(sl)
	}

	return acc, nil
}
