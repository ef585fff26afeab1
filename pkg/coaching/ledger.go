package coaching

import (
	"context"
	"fmt"
	"sync"
	"time"

	shared "github.com/mycoach/server/pkg"
)

// CostLedger gates model invocations against a monthly dollar ceiling.
// Reserve and Adjust share one critical section so the admission check
// and the ledger update are atomic across concurrent invocations.
//
// Running totals are held per user per month. Each one is seeded from
// the store on first use and maintained in memory afterwards, so an
// in-flight reservation survives other users' traffic; the
// authoritative audit trail is the PromptInvocation log.
type CostLedger struct {
	store      shared.Store
	ceilingUSD float64
	now        func() time.Time

	mu       sync.Mutex
	accounts map[string]*ledgerAccount
}

type ledgerAccount struct {
	spent float64
}

func NewCostLedger(store shared.Store, ceilingUSD float64) *CostLedger {
	return &CostLedger{
		store:      store,
		ceilingUSD: ceilingUSD,
		now:        time.Now,
		accounts:   make(map[string]*ledgerAccount),
	}
}

// Reserve admits an invocation with the given estimated cost, adding it
// to the user's running total. Returns BudgetExceededError when the
// estimate would push the month past the ceiling.
func (l *CostLedger) Reserve(ctx context.Context, userID string, estimatedUSD float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	month := l.now().UTC().Format("2006-01")
	acct, err := l.account(ctx, userID, month)
	if err != nil {
		return err
	}

	if acct.spent+estimatedUSD > l.ceilingUSD {
		return &BudgetExceededError{
			UserID:       userID,
			Month:        month,
			CeilingUSD:   l.ceilingUSD,
			SpentUSD:     acct.spent,
			EstimatedUSD: estimatedUSD,
		}
	}
	acct.spent += estimatedUSD
	return nil
}

// Adjust replaces a reservation's estimate with the actual cost once
// token counts are known.
func (l *CostLedger) Adjust(userID string, estimatedUSD, actualUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	month := l.now().UTC().Format("2006-01")
	acct, ok := l.accounts[month+"/"+userID]
	if !ok {
		return
	}
	acct.spent += actualUSD - estimatedUSD
	if acct.spent < 0 {
		acct.spent = 0
	}
}

// account returns the user's entry for the month, loading the persisted
// spend from the invocation log on first use. Caller holds l.mu.
func (l *CostLedger) account(ctx context.Context, userID, month string) (*ledgerAccount, error) {
	key := month + "/" + userID
	if acct, ok := l.accounts[key]; ok {
		return acct, nil
	}
	spent, err := l.store.MonthCost(ctx, userID, month)
	if err != nil {
		return nil, fmt.Errorf("load month cost: %w", err)
	}
	acct := &ledgerAccount{spent: spent}
	l.accounts[key] = acct
	return acct, nil
}

// Spent returns the user's running total for the current month.
func (l *CostLedger) Spent(userID string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	month := l.now().UTC().Format("2006-01")
	if acct, ok := l.accounts[month+"/"+userID]; ok {
		return acct.spent
	}
	return 0
}
