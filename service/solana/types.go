package solana

import "github.com/gagliardetto/solana-go"

// NativeMint is the wrapped SOL mint. Pairs using it are balanced in lamports.
const NativeMint = "So11111111111111111111111111111111111111112"

// IsNativeMint reports whether mint refers to SOL itself.
func IsNativeMint(mint string) bool {
	return mint == NativeMint
}

// Balance is the holding of one mint for one owner, in base units.
type Balance struct {
	Mint  string
	Owner solana.PublicKey
	// Account is the queried account: the owner for SOL, the associated token account otherwise.
	Account  solana.PublicKey
	Amount   uint64
	Decimals uint8
	// UIAmount is the decimal-adjusted amount as reported by the node.
	UIAmount string
	Native   bool
}
