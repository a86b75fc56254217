package payment

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// Token describes how to render amounts of an ERC-20 token.
type Token struct {
	Address  string `yaml:"address" json:"address"`
	Symbol   string `yaml:"symbol" json:"symbol"`
	Decimals int32  `yaml:"decimals" json:"decimals"`
}

const (
	defaultSymbol   = "TOKEN"
	defaultDecimals = 18
)

var knownTokens = []Token{
	{Address: "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48", Symbol: "USDC", Decimals: 6},  // mainnet
	{Address: "0x1c7d4b196cb0c7b01d743fbc6116a902379c7238", Symbol: "USDC", Decimals: 6},  // sepolia
	{Address: "0xdac17f958d2ee523a2206206994597c13d831ec7", Symbol: "USDT", Decimals: 6},  // mainnet
	{Address: "0x6b175474e89094c44da98b954eedeac495271d0f", Symbol: "DAI", Decimals: 18}, // mainnet
}

// Tokens maps token contract addresses to display metadata.
// A nil *Tokens behaves like NewTokens().
type Tokens struct {
	mu     sync.RWMutex
	byAddr map[string]Token
}

// NewTokens returns a registry seeded with the well-known stablecoins plus extra.
func NewTokens(extra ...Token) *Tokens {
	t := &Tokens{byAddr: make(map[string]Token, len(knownTokens)+len(extra))}
	for _, tok := range knownTokens {
		t.byAddr[tok.Address] = tok
	}
	for _, tok := range extra {
		t.Add(tok)
	}
	return t
}

var defaultTokens = NewTokens()

// Add registers or replaces a token.
func (t *Tokens) Add(tok Token) {
	tok.Address = strings.ToLower(strings.TrimSpace(tok.Address))
	if tok.Address == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byAddr[tok.Address] = tok
}

// Lookup returns the token for addr, falling back to an 18-decimal "TOKEN".
func (t *Tokens) Lookup(addr string) Token {
	if t == nil {
		t = defaultTokens
	}
	addr = strings.ToLower(addr)
	t.mu.RLock()
	tok, ok := t.byAddr[addr]
	t.mu.RUnlock()
	if !ok {
		return Token{Address: addr, Symbol: defaultSymbol, Decimals: defaultDecimals}
	}
	return tok
}

// Format renders a base-unit amount, e.g. "100000000" of USDC → "100.00 USDC".
// Tokens with up to 6 decimals get 2 places, others 4. Unparseable amounts
// are rendered verbatim.
func (t *Tokens) Format(addr, amount string) string {
	tok := t.Lookup(addr)
	raw, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return amount + " " + tok.Symbol
	}
	value := raw.Shift(-tok.Decimals)
	places := int32(4)
	if tok.Decimals <= 6 {
		places = 2
	}
	return value.StringFixedBank(places) + " " + tok.Symbol
}
