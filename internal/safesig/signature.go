// Package safesig parses the packed signature blobs submitted alongside
// multisig transactions and recovers the owner behind each one.
package safesig

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrTruncatedBlob is returned when the static part of a signature blob ends
// in the middle of a 65 byte chunk.
var ErrTruncatedBlob = errors.New("truncated signature blob")

// Kind tells how a single signature approves a transaction digest. The
// numeric values are persisted, so they must not be reordered.
type Kind uint8

const (
	KindContract     Kind = 0
	KindApprovedHash Kind = 1
	KindEOA          Kind = 2
	KindEthSign      Kind = 3
)

func (k Kind) String() string {
	switch k {
	case KindContract:
		return "contract"
	case KindApprovedHash:
		return "approved-hash"
	case KindEOA:
		return "eoa"
	case KindEthSign:
		return "eth-sign"
	default:
		return "unknown"
	}
}

// Signature is one parsed entry of a packed blob.
//
// Owner is the zero address when recovery fails, which callers see with
// garbage chunks that still decode structurally. Payload carries the dynamic
// bytes of contract signatures and is nil for every other kind.
type Signature struct {
	Owner   common.Address
	Kind    Kind
	Data    []byte
	Payload []byte
}

const chunkSize = 65

// ApprovedHashBytes builds the 65 byte signature chunk an on-chain hash
// approval stands for: the owner in the r word, an empty s word, and a v
// byte of 1.
func ApprovedHashBytes(owner common.Address) []byte {
	chunk := make([]byte, chunkSize)
	copy(chunk, common.LeftPadBytes(owner.Bytes(), 32))
	chunk[64] = 1

	return chunk
}

// Export returns the canonical standalone encoding of the signature. For most
// kinds that is the original 65 byte chunk. Contract signatures are repacked
// so their s word points right past the static part, followed by the length
// prefixed payload padded to a 32 byte boundary.
func (s Signature) Export() []byte {
	if s.Kind != KindContract {
		return s.Data
	}

	padded := (len(s.Payload) + 31) / 32 * 32

	out := make([]byte, 0, chunkSize+32+padded)
	out = append(out, common.LeftPadBytes(s.Owner.Bytes(), 32)...)
	out = append(out, common.LeftPadBytes(big.NewInt(chunkSize).Bytes(), 32)...)
	out = append(out, 0)
	out = append(out, common.LeftPadBytes(big.NewInt(int64(len(s.Payload))).Bytes(), 32)...)
	out = append(out, common.RightPadBytes(s.Payload, padded)...)

	return out
}

// Parse splits a packed signature blob into its individual signatures and
// recovers the owner each one stands for, preserving blob order.
//
// Chunks are laid out as r (32 bytes), s (32 bytes), v (1 byte). The v byte
// selects the kind: 0 is a contract signature whose s points at a dynamic
// payload later in the blob, 1 is an on-chain hash approval whose r holds the
// owner, anything above 30 is an eth_sign signature over the prefixed digest,
// and the rest are plain ECDSA signatures over the digest itself. Parsing
// stops where the first dynamic payload begins.
func Parse(blob []byte, digest common.Hash) ([]Signature, error) {
	signatures := make([]Signature, 0, len(blob)/chunkSize)

	dataPosition := len(blob)
	for i := 0; i < len(blob); i += chunkSize {
		if i >= dataPosition {
			break
		}

		if len(blob)-i < chunkSize {
			return nil, ErrTruncatedBlob
		}

		var (
			chunk = blob[i : i+chunkSize]
			v     = chunk[64]
		)

		switch {
		case v == 0:
			offset := new(big.Int).SetBytes(chunk[32:64])
			if offset.IsInt64() && int(offset.Int64()) < dataPosition {
				dataPosition = int(offset.Int64())
			}

			signatures = append(signatures, Signature{
				Owner:   common.BytesToAddress(chunk[:32]),
				Kind:    KindContract,
				Data:    chunk,
				Payload: contractPayload(blob, offset),
			})
		case v == 1:
			signatures = append(signatures, Signature{
				Owner: common.BytesToAddress(chunk[:32]),
				Kind:  KindApprovedHash,
				Data:  chunk,
			})
		case v > 30:
			signatures = append(signatures, Signature{
				Owner: recoverOwner(accounts.TextHash(digest.Bytes()), chunk, v-4),
				Kind:  KindEthSign,
				Data:  chunk,
			})
		default:
			signatures = append(signatures, Signature{
				Owner: recoverOwner(digest.Bytes(), chunk, v),
				Kind:  KindEOA,
				Data:  chunk,
			})
		}
	}

	return signatures, nil
}

// contractPayload reads the length-prefixed dynamic bytes a contract
// signature points at. Out of range offsets or lengths are clamped to the
// blob, so a wild pointer yields an empty payload instead of an error.
func contractPayload(blob []byte, offset *big.Int) []byte {
	if !offset.IsInt64() || offset.Int64() > int64(len(blob)) {
		return nil
	}

	var (
		start       = int(offset.Int64())
		lengthWord  = clamp(blob, start, start+32)
		length      = new(big.Int).SetBytes(lengthWord)
		payloadFrom = start + 32
		payloadTo   = len(blob)
	)

	if length.IsInt64() && payloadFrom+int(length.Int64()) >= payloadFrom {
		payloadTo = payloadFrom + int(length.Int64())
	}

	return clamp(blob, payloadFrom, payloadTo)
}

// recoverOwner runs ECDSA recovery for the given digest. The v byte is
// the Ethereum convention of 27 or 28, and anything unrecoverable yields the
// zero address.
func recoverOwner(digest []byte, chunk []byte, v byte) common.Address {
	sig := make([]byte, chunkSize)
	copy(sig, chunk[:64])
	sig[64] = v - 27

	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return common.Address{}
	}

	return crypto.PubkeyToAddress(*pub)
}

func clamp(b []byte, start, end int) []byte {
	if start < 0 {
		start = 0
	}
	if start > len(b) {
		start = len(b)
	}
	if end < start {
		end = start
	}
	if end > len(b) {
		end = len(b)
	}

	return b[start:end]
}
