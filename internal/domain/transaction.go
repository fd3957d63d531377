package domain

import "time"

// TransactionKind tags what kind of settled movement a record describes.
type TransactionKind string

const (
	TxKindTransfer        TransactionKind = "transfer"
	TxKindDeposit         TransactionKind = "deposit"
	TxKindStakeDeposit    TransactionKind = "stake-deposit"
	TxKindStakeWithdrawal TransactionKind = "stake-withdrawal"
	TxKindRewardPayout    TransactionKind = "reward-payout"
	TxKindTrade           TransactionKind = "trade"
	TxKindSwap            TransactionKind = "swap"
)

// Sentinel participant identifiers. Staking movements leave one side empty;
// reward payouts carry the "reward" sender.
const (
	ParticipantNone   = ""
	ParticipantReward = "reward"
)

// TransactionRecord is one immutable row of the append-only transaction log.
// Records are written exactly once per balance-affecting step and never
// modified afterwards.
type TransactionRecord struct {
	ID         string
	Kind       TransactionKind
	SenderID   string
	ReceiverID string
	Asset      string
	Amount     float64
	CreatedAt  time.Time
}

// TxDirection classifies a record relative to a particular user.
type TxDirection string

const (
	TxDirectionSend     TxDirection = "send"
	TxDirectionReceive  TxDirection = "receive"
	TxDirectionStaked   TxDirection = "staked"
	TxDirectionUnstaked TxDirection = "unstaked"
	TxDirectionReward   TxDirection = "reward"
	TxDirectionSwap     TxDirection = "swap"
	TxDirectionDeposit  TxDirection = "deposit"
)

// Direction reports how this record looks from userID's perspective, using
// the kind tag and the sentinel participants.
func (t TransactionRecord) Direction(userID string) TxDirection {
	switch t.Kind {
	case TxKindStakeDeposit:
		return TxDirectionStaked
	case TxKindStakeWithdrawal:
		return TxDirectionUnstaked
	case TxKindRewardPayout:
		return TxDirectionReward
	case TxKindSwap:
		return TxDirectionSwap
	case TxKindDeposit:
		return TxDirectionDeposit
	}
	if t.SenderID == userID {
		return TxDirectionSend
	}
	return TxDirectionReceive
}

// HistoryEntry is a transaction record classified for one user's view.
type HistoryEntry struct {
	Record    TransactionRecord
	Direction TxDirection
}
