package domain

// EventKind classifies custody journal events.
type EventKind string

// Event kinds emitted by the engines.
const (
	EventTransfer  EventKind = "transfer"
	EventFee       EventKind = "fee"
	EventMint      EventKind = "mint"
	EventBurn      EventKind = "burn"
	EventLiquidity EventKind = "liquidity_provided"

	EventScheduleCreated  EventKind = "schedule_created"
	EventScheduleReleased EventKind = "schedule_released"
	EventScheduleRevoked  EventKind = "schedule_revoked"

	EventLockCreated      EventKind = "lock_created"
	EventLockUnlocked     EventKind = "lock_unlocked"
	EventLockExtended     EventKind = "lock_extended"
	EventLockOwnerChanged EventKind = "lock_owner_changed"
	EventLockRecovered    EventKind = "lock_recovered"

	EventRatesUpdated     EventKind = "rates_updated"
	EventLimitsUpdated    EventKind = "limits_updated"
	EventExemptionUpdated EventKind = "exemption_updated"
	EventBlacklistUpdated EventKind = "blacklist_updated"
	EventTradingUpdated   EventKind = "trading_updated"

	EventReflectionClaimed EventKind = "reflection_claimed"
)

// Event is one entry in the custody journal. Amounts are decimal strings
// so arbitrary-precision values survive serialization unchanged.
// Seq is assigned by the journal and is strictly increasing.
type Event struct {
	Seq       uint64
	Kind      EventKind
	Token     Address
	RefID     string // schedule id or lock id, empty for plain movements
	From      Address
	To        Address
	Amount    string
	Category  string // fee category for EventFee, otherwise empty
	Before    string // value relevant to reconciliation prior to the change
	After     string // value after the change
	Timestamp int64  // Unix timestamp in milliseconds
}
