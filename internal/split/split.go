// Package split computes the fixed-ratio division of a bill.
package split

import "github.com/ahting/billsplit/internal/money"

// Split divides a total between the counterparty and the account owner.
// The counterparty share is rounded to the cent (half up); the own share is
// the exact remainder, never rounded independently, so the two always sum to
// the total to the cent.
func Split(total money.Cents, counterpartyRatio float64) (counterparty, own money.Cents) {
	counterparty = money.RoundHalfUp(total, counterpartyRatio)
	own = total - counterparty
	return counterparty, own
}
