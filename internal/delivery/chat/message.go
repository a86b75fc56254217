package chat

import (
	"fmt"
	"strings"

	"github.com/gyaneshwarpardhi/paynotify/internal/payment"
)

const timeLayout = "2006-01-02 15:04:05 UTC"

// Render builds the Markdown notification text for evt.
func Render(evt payment.Event, tokens *payment.Tokens, explorerURL string) string {
	var b strings.Builder
	b.WriteString("🎉 *Payment Received!*\n\n")
	fmt.Fprintf(&b, "💰 *Amount:* %s\n", tokens.Format(evt.TokenAddress, evt.Amount))
	fmt.Fprintf(&b, "👤 *Customer:* `%s`\n", evt.ShortCustomer())
	fmt.Fprintf(&b, "📝 *Payment ID:* `%s`\n", evt.ShortPaymentID())
	if explorerURL != "" && evt.TransactionHash != "" {
		fmt.Fprintf(&b, "🔗 [View Transaction](%s/tx/%s)\n", strings.TrimRight(explorerURL, "/"), evt.TransactionHash)
	}
	fmt.Fprintf(&b, "⏰ *Time:* %s\n", evt.BlockTimestamp.UTC().Format(timeLayout))
	fmt.Fprintf(&b, "📦 *Block:* #%d", evt.BlockNumber)
	return b.String()
}
