package constants

// Action tags for processing_log rows. Append-only; these exact strings are stored.
const (
	ActionBillCreated      = "bill_created"
	ActionRequestSent      = "request_sent"
	ActionPaymentConfirmed = "payment_confirmed"
)
