package domain

import "testing"

func TestTransactionDirection(t *testing.T) {
	tests := []struct {
		name string
		rec  TransactionRecord
		user string
		want TxDirection
	}{
		{"transfer out", TransactionRecord{Kind: TxKindTransfer, SenderID: "alice", ReceiverID: "bob"}, "alice", TxDirectionSend},
		{"transfer in", TransactionRecord{Kind: TxKindTransfer, SenderID: "alice", ReceiverID: "bob"}, "bob", TxDirectionReceive},
		{"deposit", TransactionRecord{Kind: TxKindDeposit, SenderID: ParticipantNone, ReceiverID: "alice"}, "alice", TxDirectionDeposit},
		{"stake deposit", TransactionRecord{Kind: TxKindStakeDeposit, SenderID: "alice", ReceiverID: ParticipantNone}, "alice", TxDirectionStaked},
		{"stake withdrawal", TransactionRecord{Kind: TxKindStakeWithdrawal, SenderID: ParticipantNone, ReceiverID: "alice"}, "alice", TxDirectionUnstaked},
		{"reward payout", TransactionRecord{Kind: TxKindRewardPayout, SenderID: ParticipantReward, ReceiverID: "alice"}, "alice", TxDirectionReward},
		{"swap", TransactionRecord{Kind: TxKindSwap, SenderID: "alice", ReceiverID: "alice"}, "alice", TxDirectionSwap},
		{"trade sell side", TransactionRecord{Kind: TxKindTrade, SenderID: "bob", ReceiverID: "alice"}, "bob", TxDirectionSend},
		{"trade buy side", TransactionRecord{Kind: TxKindTrade, SenderID: "bob", ReceiverID: "alice"}, "alice", TxDirectionReceive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rec.Direction(tt.user); got != tt.want {
				t.Errorf("Direction(%q) = %s, want %s", tt.user, got, tt.want)
			}
		})
	}
}

func TestBalanceTotal(t *testing.T) {
	b := Balance{Available: 3, Locked: 2}
	if got := b.Total(); got != 5 {
		t.Errorf("Total() = %v, want 5", got)
	}
}
