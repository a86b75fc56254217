package payment

import (
	"strings"
	"time"
)

// StatusCompleted is the only status the event source currently emits.
const StatusCompleted = "completed"

// Event is a completed on-chain payment as delivered by the event source.
type Event struct {
	PaymentIntentID string    `json:"payment_intent_id"`
	MerchantID      string    `json:"merchant_id"`
	CustomerAddress string    `json:"customer_address"`
	TokenAddress    string    `json:"token_address"`
	Amount          string    `json:"amount"` // base units, decimal string
	TransactionHash string    `json:"transaction_hash"`
	BlockNumber     uint64    `json:"block_number"`
	BlockTimestamp  time.Time `json:"block_timestamp"`
	Status          string    `json:"status"`
}

// Normalize lower-cases addresses and hashes and fills defaults. It returns
// a copy; the receiver is left untouched.
func (e Event) Normalize() Event {
	e.MerchantID = strings.ToLower(strings.TrimSpace(e.MerchantID))
	e.CustomerAddress = strings.ToLower(strings.TrimSpace(e.CustomerAddress))
	e.TokenAddress = strings.ToLower(strings.TrimSpace(e.TokenAddress))
	e.TransactionHash = strings.ToLower(strings.TrimSpace(e.TransactionHash))
	e.PaymentIntentID = strings.TrimSpace(e.PaymentIntentID)
	if e.Status == "" {
		e.Status = StatusCompleted
	}
	if e.Amount == "" {
		e.Amount = "0"
	}
	e.BlockTimestamp = e.BlockTimestamp.UTC()
	return e
}

// ID is the deduplication key of the event.
func (e Event) ID() string {
	return "evt_" + strings.ToLower(e.TransactionHash) + "_" + e.PaymentIntentID
}

// Fields flattens the event into the wire map carried in webhook payloads.
func (e Event) Fields(tokens *Tokens) map[string]any {
	return map[string]any{
		"payment_intent_id": e.PaymentIntentID,
		"merchant_id":       e.MerchantID,
		"customer_address":  e.CustomerAddress,
		"token_address":     e.TokenAddress,
		"amount":            e.Amount,
		"formatted_amount":  tokens.Format(e.TokenAddress, e.Amount),
		"transaction_hash":  e.TransactionHash,
		"block_number":      e.BlockNumber,
		"block_timestamp":   e.BlockTimestamp.UTC().Format(time.RFC3339),
		"status":            e.Status,
	}
}

// ShortCustomer returns the customer address as 0x1234...abcd.
func (e Event) ShortCustomer() string {
	return ShortAddress(e.CustomerAddress)
}

// ShortMerchant returns the merchant address as 0x1234...abcd.
func (e Event) ShortMerchant() string {
	return ShortAddress(e.MerchantID)
}

// ShortPaymentID keeps the first 10 and last 6 characters of long ids.
func (e Event) ShortPaymentID() string {
	id := e.PaymentIntentID
	if len(id) > 20 {
		return id[:10] + "..." + id[len(id)-6:]
	}
	return id
}

// ShortAddress keeps the first 6 and last 4 characters of an address.
func ShortAddress(addr string) string {
	if len(addr) > 10 {
		return addr[:6] + "..." + addr[len(addr)-4:]
	}
	return addr
}
