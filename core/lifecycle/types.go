package lifecycle

import "time"

// SubmissionStatus mirrors the on-ledger status enum. The ledger never
// transitions a submission back to Pending once a decision is recorded.
type SubmissionStatus uint8

const (
	StatusPending SubmissionStatus = iota
	StatusApproved
	StatusRejected
)

func (s SubmissionStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Submission is one proof-of-work cleanup record as the ledger reports it.
//
// Rewarded means "a reward-distributing transaction touched this submission".
// It is NOT the same as "the owner claimed it"; the client-side claim record
// tracks that separately (see Resolver and PreFixDetector).
type Submission struct {
	ID              uint64           `json:"id"`
	Owner           string           `json:"owner"`
	BeforePhotoHash string           `json:"before_photo_hash"`
	AfterPhotoHash  string           `json:"after_photo_hash"`
	Latitude        int64            `json:"latitude"`
	Longitude       int64            `json:"longitude"`
	SubmittedAt     time.Time        `json:"submitted_at"`
	ApprovedAt      time.Time        `json:"approved_at,omitempty"`
	Status          SubmissionStatus `json:"status"`
	Rewarded        bool             `json:"rewarded"`
	Level           int              `json:"level"`
	HasImpactForm   bool             `json:"has_impact_form"`
	HasRecyclables  bool             `json:"has_recyclables"`
}

// LifecycleStatus is the resolved view for one owner/submission pair.
// It is derived on every resolve and never persisted.
type LifecycleStatus struct {
	SubmissionID uint64 `json:"submission_id"`
	Owner        string `json:"owner"`
	Verified     bool   `json:"verified"`
	Rejected     bool   `json:"rejected"`
	// Claimed comes from the local claim record, not from the ledger's
	// rewarded flag. The two diverge for pre-fix artifacts.
	Claimed  bool `json:"claimed"`
	CanClaim bool `json:"can_claim"`
	// LedgerRewarded is surfaced separately so callers can see both sides
	// of the claimed-vs-rewarded split.
	LedgerRewarded bool `json:"ledger_rewarded"`
	PreFix         bool `json:"pre_fix,omitempty"`
}

// MaxImpactLevel is the top Impact Product NFT level; upgrades clamp here.
const MaxImpactLevel = 10

// TxReceipt is the confirmed result of a ledger write.
type TxReceipt struct {
	TxHash      string    `json:"tx_hash"`
	BlockHeight int64     `json:"block_height"`
	Events      []TxEvent `json:"events"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// TxEvent is one decoded log entry from a confirmed transaction.
type TxEvent struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// HasEvent reports whether the receipt contains an event with the given name.
func (r TxReceipt) HasEvent(name string) bool {
	for _, ev := range r.Events {
		if ev.Name == name {
			return true
		}
	}
	return false
}

// EventRewardClaimed is emitted by the ledger when a balance claim settles.
const EventRewardClaimed = "RewardClaimed"

// ClaimResult reports a successful claim back to the caller. The caller is
// responsible for writing the submission id into the claim record; the
// coordinator never mutates the cache itself.
type ClaimResult struct {
	TxHash         string `json:"tx_hash"`
	BalanceClaimed uint64 `json:"balance_claimed"`
	MintedLevel    int    `json:"minted_level,omitempty"`
	// MintSkipped is set when the owner was already at MaxImpactLevel and
	// only the legacy balance settlement ran.
	MintSkipped bool `json:"mint_skipped,omitempty"`
}
