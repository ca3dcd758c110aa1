package solana

import (
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// TokenDelta returns post minus pre token balance for mint across the accounts in meta.
// A zero owner matches every account. A mint that only appears after the transaction
// counts from zero, since the token account was created by it. ok is false when the
// mint is absent from the post balances.
func TokenDelta(meta *rpc.TransactionMeta, mint string, owner solana.PublicKey) (int64, bool) {
	if meta == nil {
		return 0, false
	}

	post, postFound := sumTokenBalances(meta.PostTokenBalances, mint, owner)
	if !postFound {
		return 0, false
	}
	pre, _ := sumTokenBalances(meta.PreTokenBalances, mint, owner)

	return post - pre, true
}

func sumTokenBalances(balances []rpc.TokenBalance, mint string, owner solana.PublicKey) (int64, bool) {
	var total int64
	found := false
	for _, bal := range balances {
		if bal.Mint.String() != mint {
			continue
		}
		if !owner.IsZero() && (bal.Owner == nil || !bal.Owner.Equals(owner)) {
			continue
		}
		if bal.UiTokenAmount == nil {
			continue
		}
		amount, err := strconv.ParseInt(bal.UiTokenAmount.Amount, 10, 64)
		if err != nil {
			continue
		}
		total += amount
		found = true
	}
	return total, found
}
