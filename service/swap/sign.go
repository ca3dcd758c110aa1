package swap

import (
	"encoding/base64"
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ErrSignerNotRequired is returned when the order transaction does not list our key as a signer.
var ErrSignerNotRequired = errors.New("key is not a required signer of the transaction")

// SignTransaction decodes a base64 versioned transaction, signs its message with key and
// returns the re-serialized transaction. The signature lands in the slot matching the
// key's position among the message's required signers.
func SignTransaction(blob string, key solana.PrivateKey) (string, solana.Signature, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", solana.Signature{}, fmt.Errorf("decode transaction: %w", err)
	}

	tx, err := solana.TransactionFromDecoder(bin.NewBinDecoder(raw))
	if err != nil {
		return "", solana.Signature{}, fmt.Errorf("unmarshal transaction: %w", err)
	}

	required := int(tx.Message.Header.NumRequiredSignatures)
	signer := key.PublicKey()
	index := -1
	for i := 0; i < required && i < len(tx.Message.AccountKeys); i++ {
		if tx.Message.AccountKeys[i].Equals(signer) {
			index = i
			break
		}
	}
	if index < 0 {
		return "", solana.Signature{}, fmt.Errorf("%w: %s", ErrSignerNotRequired, signer)
	}

	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return "", solana.Signature{}, fmt.Errorf("marshal message: %w", err)
	}

	sig, err := key.Sign(msg)
	if err != nil {
		return "", solana.Signature{}, fmt.Errorf("sign message: %w", err)
	}

	for len(tx.Signatures) < required {
		tx.Signatures = append(tx.Signatures, solana.Signature{})
	}
	tx.Signatures[index] = sig

	signed, err := tx.MarshalBinary()
	if err != nil {
		return "", solana.Signature{}, fmt.Errorf("marshal signed transaction: %w", err)
	}

	return base64.StdEncoding.EncodeToString(signed), sig, nil
}
