package audithook

// Action constants for audit events.
const (
	// Registry actions
	ActionProjectRegistered = "project.registered"

	// Voting actions
	ActionVoteCast     = "vote.cast"
	ActionVoteRejected = "vote.rejected"

	// Fee actions
	ActionFeeCharged      = "fee.charged"
	ActionFeeChargeFailed = "fee.charge_failed"
	ActionFeeRefunded     = "fee.refunded"
	ActionFeesWithdrawn   = "fee.withdrawn"
	ActionFeeUpdated      = "fee.updated"

	// Access actions
	ActionAccessDenied = "access.denied"
)

// Resource constants for audit events.
const (
	ResourceProject  = "project"
	ResourceVote     = "vote"
	ResourceFee      = "fee"
	ResourceTreasury = "treasury"
)

// Category constants for audit events.
const (
	CategoryRegistry = "registry"
	CategoryVoting   = "voting"
	CategoryPayment  = "payment"
	CategoryAccess   = "access"
	CategoryAdmin    = "admin"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
