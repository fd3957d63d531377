package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

func newTestLedger() (*LedgerService, *fakeBalanceStore, *fakeTransactionStore, *fakeEventBus) {
	balances := newFakeBalanceStore()
	txns := newFakeTransactionStore()
	bus := newFakeEventBus()
	svc := NewLedgerService(newFakeAccountStore(), balances, txns, newFakeLockManager(), bus, testLogger())
	return svc, balances, txns, bus
}

func TestDepositCreditsAndRecords(t *testing.T) {
	svc, balances, txns, _ := newTestLedger()

	got, err := svc.Deposit(context.Background(), "alice", "bitcoin", 1.5)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if got != 1.5 {
		t.Errorf("new amount = %v, want 1.5", got)
	}
	if bal := balances.available("alice", "bitcoin"); bal != 1.5 {
		t.Errorf("available = %v, want 1.5", bal)
	}

	recs := txns.byKind(domain.TxKindDeposit)
	if len(recs) != 1 {
		t.Fatalf("deposit records = %d, want 1", len(recs))
	}
	rec := recs[0]
	if rec.SenderID != domain.ParticipantNone {
		t.Errorf("sender = %q, want empty", rec.SenderID)
	}
	if rec.ReceiverID != "alice" || rec.Asset != "bitcoin" || rec.Amount != 1.5 {
		t.Errorf("unexpected record %+v", rec)
	}
}

func TestDepositRejectsNonPositiveAmount(t *testing.T) {
	svc, balances, txns, _ := newTestLedger()

	for _, amount := range []float64{0, -1} {
		if _, err := svc.Deposit(context.Background(), "alice", "bitcoin", amount); !errors.Is(err, domain.ErrInvalidAmount) {
			t.Errorf("Deposit(%v) error = %v, want ErrInvalidAmount", amount, err)
		}
	}
	if bal := balances.available("alice", "bitcoin"); bal != 0 {
		t.Errorf("available = %v, want 0", bal)
	}
	if len(txns.all()) != 0 {
		t.Errorf("records = %d, want 0", len(txns.all()))
	}
}

func TestTransferMovesFundsAndRecords(t *testing.T) {
	svc, balances, txns, _ := newTestLedger()
	balances.set("alice", "bitcoin", 2, 0)

	if err := svc.Transfer(context.Background(), "alice", "bob", "bitcoin", 0.75); err != nil {
		t.Fatalf("Transfer: %v", err)
	}

	if bal := balances.available("alice", "bitcoin"); bal != 1.25 {
		t.Errorf("alice available = %v, want 1.25", bal)
	}
	if bal := balances.available("bob", "bitcoin"); bal != 0.75 {
		t.Errorf("bob available = %v, want 0.75", bal)
	}

	recs := txns.byKind(domain.TxKindTransfer)
	if len(recs) != 1 {
		t.Fatalf("transfer records = %d, want 1", len(recs))
	}
	if recs[0].SenderID != "alice" || recs[0].ReceiverID != "bob" {
		t.Errorf("unexpected participants %+v", recs[0])
	}
}

func TestTransferInsufficientFundsIsNoOp(t *testing.T) {
	svc, balances, txns, _ := newTestLedger()
	balances.set("alice", "bitcoin", 0.5, 0)

	err := svc.Transfer(context.Background(), "alice", "bob", "bitcoin", 1)
	if !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Fatalf("Transfer error = %v, want ErrInsufficientFunds", err)
	}

	if bal := balances.available("alice", "bitcoin"); bal != 0.5 {
		t.Errorf("alice available = %v, want 0.5 (unchanged)", bal)
	}
	if bal := balances.available("bob", "bitcoin"); bal != 0 {
		t.Errorf("bob available = %v, want 0", bal)
	}
	if len(txns.all()) != 0 {
		t.Errorf("records = %d, want 0", len(txns.all()))
	}
}

func TestTransferRecordFailureRollsBackBothLegs(t *testing.T) {
	svc, balances, txns, _ := newTestLedger()
	balances.set("alice", "bitcoin", 2, 0)
	txns.appendErr = errors.New("log down")

	if err := svc.Transfer(context.Background(), "alice", "bob", "bitcoin", 1); err == nil {
		t.Fatal("Transfer succeeded with a failing log")
	}

	if bal := balances.available("alice", "bitcoin"); bal != 2 {
		t.Errorf("alice available = %v, want 2 (debit unwound)", bal)
	}
	if bal := balances.available("bob", "bitcoin"); bal != 0 {
		t.Errorf("bob available = %v, want 0 (credit unwound)", bal)
	}
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	svc, balances, _, _ := newTestLedger()
	balances.set("alice", "bitcoin", 2, 0)

	if err := svc.Transfer(context.Background(), "alice", "bob", "bitcoin", 0); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("Transfer(0) error = %v, want ErrInvalidAmount", err)
	}
}

func TestGetBalanceMissingRowReadsZero(t *testing.T) {
	svc, _, _, _ := newTestLedger()

	bal, err := svc.GetBalance(context.Background(), "ghost", "bitcoin")
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}
	if bal.UserID != "ghost" || bal.Asset != "bitcoin" {
		t.Errorf("identity = %s/%s, want ghost/bitcoin", bal.UserID, bal.Asset)
	}
	if bal.Available != 0 || bal.Locked != 0 {
		t.Errorf("balance = %+v, want zero", bal)
	}
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	svc, balances, _, _ := newTestLedger()
	balances.set("alice", "bitcoin", 100, 0)
	balances.set("bob", "bitcoin", 100, 0)

	const rounds = 50
	var wg sync.WaitGroup
	wg.Add(2 * rounds)
	for i := 0; i < rounds; i++ {
		go func() {
			defer wg.Done()
			_ = svc.Transfer(context.Background(), "alice", "bob", "bitcoin", 1)
		}()
		go func() {
			defer wg.Done()
			_ = svc.Transfer(context.Background(), "bob", "alice", "bitcoin", 1)
		}()
	}
	wg.Wait()

	total := balances.available("alice", "bitcoin") + balances.available("bob", "bitcoin")
	if total != 200 {
		t.Errorf("total after concurrent transfers = %v, want 200", total)
	}
}

func TestConcurrentDepositsAccumulate(t *testing.T) {
	svc, balances, _, _ := newTestLedger()

	const workers = 40
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if _, err := svc.Deposit(context.Background(), "alice", "solana", 1); err != nil {
				t.Errorf("Deposit: %v", err)
			}
		}()
	}
	wg.Wait()

	if bal := balances.available("alice", "solana"); bal != workers {
		t.Errorf("available = %v, want %d", bal, workers)
	}
}

func TestTransferEnsuresReceiverAccount(t *testing.T) {
	accounts := newFakeAccountStore()
	balances := newFakeBalanceStore()
	svc := NewLedgerService(accounts, balances, newFakeTransactionStore(), newFakeLockManager(), newFakeEventBus(), testLogger())
	balances.set("alice", "bitcoin", 2, 0)

	if err := svc.Transfer(context.Background(), "alice", "bob", "bitcoin", 1); err != nil {
		t.Fatalf("Transfer: %v", err)
	}
	if !accounts.has("bob") {
		t.Error("receiver account was not created by the transfer")
	}
	if bal := balances.available("bob", "bitcoin"); bal != 1 {
		t.Errorf("bob available = %v, want 1", bal)
	}
}

func TestConcurrentEqualDebitsExactlyOneSucceeds(t *testing.T) {
	svc, balances, _, _ := newTestLedger()
	balances.set("alice", "bitcoin", 100, 0)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	for _, receiver := range []string{"bob", "carol"} {
		go func() {
			defer wg.Done()
			errs <- svc.Transfer(context.Background(), "alice", receiver, "bitcoin", 100)
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, insufficient int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientFunds):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || insufficient != 1 {
		t.Fatalf("outcomes = %d succeeded, %d insufficient, want exactly one of each", succeeded, insufficient)
	}

	if bal := balances.available("alice", "bitcoin"); bal != 0 {
		t.Errorf("alice available = %v, want 0", bal)
	}
	credited := balances.available("bob", "bitcoin") + balances.available("carol", "bitcoin")
	if credited != 100 {
		t.Errorf("credited total = %v, want 100", credited)
	}
}
