package constants

// BillStatus is the canonical lifecycle status for rows in bills.
type BillStatus string

// Stable values (store these exact strings in DB).
const (
	BillStatusProcessed BillStatus = "processed" // created, payment request not yet sent
	BillStatusRequested BillStatus = "requested" // payment request delivered
	BillStatusPaid      BillStatus = "paid"      // confirmation matched, terminal
)

// Open reports whether a bill in this status can still receive a payment.
func (s BillStatus) Open() bool {
	return s == BillStatusProcessed || s == BillStatusRequested
}
