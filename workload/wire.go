package workload

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// ErrSanitize is returned by Sanitize for messages the validator rejects.
var ErrSanitize = errors.New("transaction failed to sanitize accounts offsets correctly")

// Encode serializes tx in the transaction wire format: the compact-u16
// signature count, the signatures, then the message. Unlike
// solana.Transaction.MarshalBinary it does not refuse unsigned
// transactions.
func Encode(tx *solana.Transaction) ([]byte, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}

	out := make([]byte, 0, 3+len(tx.Signatures)*solana.SignatureLength+len(msg))
	out = appendCompactU16(out, len(tx.Signatures))

	for _, sig := range tx.Signatures {
		out = append(out, sig[:]...)
	}

	return append(out, msg...), nil
}

// Sanitize applies the validator's legacy message sanity rules to msg.
func Sanitize(msg *solana.Message) error {
	h := msg.Header
	numKeys := len(msg.AccountKeys)

	if int(h.NumRequiredSignatures)+int(h.NumReadonlyUnsignedAccounts) > numKeys {
		return fmt.Errorf("%w: header references %d keys, have %d",
			ErrSanitize,
			int(h.NumRequiredSignatures)+int(h.NumReadonlyUnsignedAccounts),
			numKeys,
		)
	}

	// A fee payer must exist and be writable.
	if h.NumReadonlySignedAccounts >= h.NumRequiredSignatures {
		return fmt.Errorf("%w: %d readonly signers of %d required",
			ErrSanitize, h.NumReadonlySignedAccounts, h.NumRequiredSignatures,
		)
	}

	for i, ix := range msg.Instructions {
		if int(ix.ProgramIDIndex) >= numKeys {
			return fmt.Errorf("%w: instruction %d program index %d out of range",
				ErrSanitize, i, ix.ProgramIDIndex,
			)
		}

		if ix.ProgramIDIndex == 0 {
			return fmt.Errorf("%w: instruction %d uses the fee payer as program",
				ErrSanitize, i,
			)
		}

		for _, idx := range ix.Accounts {
			if int(idx) >= numKeys {
				return fmt.Errorf("%w: instruction %d account index %d out of range",
					ErrSanitize, i, idx,
				)
			}
		}
	}

	return nil
}

func appendCompactU16(buf []byte, n int) []byte {
	for {
		b := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}
