package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alanyoungcy/coinledger/internal/domain"
)

func newTestFriends() (*FriendService, *fakeFriendStore, *fakeBalanceStore) {
	friends := newFakeFriendStore()
	balances := newFakeBalanceStore()
	ledger := NewLedgerService(newFakeAccountStore(), balances, newFakeTransactionStore(), newFakeLockManager(), newFakeEventBus(), testLogger())
	svc := NewFriendService(friends, ledger, newFakeEventBus(), 48*time.Hour, time.Hour, testLogger())
	return svc, friends, balances
}

func TestSendRequestRejectsSelf(t *testing.T) {
	svc, _, _ := newTestFriends()

	_, err := svc.SendRequest(context.Background(), "alice", "alice")
	if !errors.Is(err, domain.ErrSelfTarget) {
		t.Fatalf("SendRequest error = %v, want ErrSelfTarget", err)
	}
}

func TestSendRequestRejectsExistingFriendship(t *testing.T) {
	svc, friends, _ := newTestFriends()
	if err := friends.AddFriendship(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("AddFriendship: %v", err)
	}

	_, err := svc.SendRequest(context.Background(), "alice", "bob")
	if !errors.Is(err, domain.ErrAlreadyFriends) {
		t.Fatalf("SendRequest error = %v, want ErrAlreadyFriends", err)
	}
}

func TestSendRequestRejectsDuplicate(t *testing.T) {
	svc, _, _ := newTestFriends()

	if _, err := svc.SendRequest(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("first SendRequest: %v", err)
	}
	_, err := svc.SendRequest(context.Background(), "alice", "bob")
	if !errors.Is(err, domain.ErrDuplicateRequest) {
		t.Fatalf("second SendRequest error = %v, want ErrDuplicateRequest", err)
	}
}

func TestAcceptEstablishesFriendshipBothWays(t *testing.T) {
	svc, friends, _ := newTestFriends()

	if _, err := svc.SendRequest(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if err := svc.Respond(context.Background(), "alice", "bob", true); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	for _, pair := range [][2]string{{"alice", "bob"}, {"bob", "alice"}} {
		ok, err := friends.AreFriends(context.Background(), pair[0], pair[1])
		if err != nil {
			t.Fatalf("AreFriends: %v", err)
		}
		if !ok {
			t.Errorf("%s and %s are not friends", pair[0], pair[1])
		}
	}

	// The answered request is no longer pending.
	if _, err := svc.SendRequest(context.Background(), "alice", "bob"); !errors.Is(err, domain.ErrAlreadyFriends) {
		t.Errorf("re-request error = %v, want ErrAlreadyFriends", err)
	}
}

func TestDeclineLeavesNoFriendship(t *testing.T) {
	svc, friends, _ := newTestFriends()

	if _, err := svc.SendRequest(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}
	if err := svc.Respond(context.Background(), "alice", "bob", false); err != nil {
		t.Fatalf("Respond: %v", err)
	}

	ok, err := friends.AreFriends(context.Background(), "alice", "bob")
	if err != nil {
		t.Fatalf("AreFriends: %v", err)
	}
	if ok {
		t.Error("declined request created a friendship")
	}
}

func TestRespondExpiredRequestDeclines(t *testing.T) {
	svc, _, _ := newTestFriends()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	if _, err := svc.SendRequest(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("SendRequest: %v", err)
	}

	// Answering after the 48h window declines on the spot.
	svc.now = func() time.Time { return base.Add(49 * time.Hour) }
	err := svc.Respond(context.Background(), "alice", "bob", true)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Respond error = %v, want ErrNotFound", err)
	}

	// The request was declined, not left pending.
	pending, err := svc.ListPendingRequests(context.Background(), "bob")
	if err != nil {
		t.Fatalf("ListPendingRequests: %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0", len(pending))
	}
}

func TestSweepExpiredDeclinesStaleRequests(t *testing.T) {
	svc, _, _ := newTestFriends()

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }
	if _, err := svc.SendRequest(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("SendRequest stale: %v", err)
	}

	svc.now = func() time.Time { return base.Add(47 * time.Hour) }
	if _, err := svc.SendRequest(context.Background(), "carol", "bob"); err != nil {
		t.Fatalf("SendRequest fresh: %v", err)
	}

	svc.now = func() time.Time { return base.Add(49 * time.Hour) }
	if err := svc.SweepExpired(context.Background()); err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}

	pending, err := svc.ListPendingRequests(context.Background(), "bob")
	if err != nil {
		t.Fatalf("ListPendingRequests: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}
	if pending[0].SenderID != "carol" {
		t.Errorf("remaining sender = %s, want carol", pending[0].SenderID)
	}
}

func TestTransferToFriendRequiresFriendship(t *testing.T) {
	svc, friends, balances := newTestFriends()
	balances.set("alice", "solana", 10, 0)

	err := svc.TransferToFriend(context.Background(), "alice", "bob", "solana", 2)
	if !errors.Is(err, domain.ErrNotFriends) {
		t.Fatalf("TransferToFriend error = %v, want ErrNotFriends", err)
	}
	if bal := balances.available("alice", "solana"); bal != 10 {
		t.Errorf("available = %v, want 10 (untouched)", bal)
	}

	if err := friends.AddFriendship(context.Background(), "alice", "bob"); err != nil {
		t.Fatalf("AddFriendship: %v", err)
	}
	if err := svc.TransferToFriend(context.Background(), "alice", "bob", "solana", 2); err != nil {
		t.Fatalf("TransferToFriend: %v", err)
	}
	if bal := balances.available("bob", "solana"); bal != 2 {
		t.Errorf("bob available = %v, want 2", bal)
	}
}

func TestTransferToFriendRejectsSelf(t *testing.T) {
	svc, _, _ := newTestFriends()

	err := svc.TransferToFriend(context.Background(), "alice", "alice", "solana", 1)
	if !errors.Is(err, domain.ErrSelfTarget) {
		t.Fatalf("TransferToFriend error = %v, want ErrSelfTarget", err)
	}
}
