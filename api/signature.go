package api

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/xraph/ballot/types"
)

var (
	// ErrBadSignature is returned when a signed caller header does not verify.
	ErrBadSignature = errors.New("api: caller signature invalid")

	// ErrReplayedSignature is returned for a signed request that was
	// already accepted. It wraps ErrBadSignature.
	ErrReplayedSignature = fmt.Errorf("%w: request already seen", ErrBadSignature)
)

const (
	// DefaultMaxSkew bounds how old a signed request may be.
	DefaultMaxSkew = 5 * time.Minute

	// DefaultReplayCacheSize is how many accepted requests are remembered.
	// It should cover the requests expected within one skew window.
	DefaultReplayCacheSize = 1 << 16

	// maxSignedBody caps the body read for hashing.
	maxSignedBody = 1 << 20
)

// SignatureVerifier checks that the caller header was signed by the key
// behind the claimed address. The signed text is
//
//	ballot:<METHOD>:<path>?<raw query>:<keccak256(body) hex>:<unix seconds>
//
// hashed with the EIP-191 personal message prefix, as produced by
// personal_sign or eth_sign in wallets. Each signed text is accepted once.
type SignatureVerifier struct {
	clock   clock.Clock
	maxSkew time.Duration
	seen    *lru.Cache[string, struct{}]
}

// NewSignatureVerifier returns a verifier accepting timestamps within
// maxSkew of now. A zero maxSkew uses DefaultMaxSkew.
func NewSignatureVerifier(c clock.Clock, maxSkew time.Duration) *SignatureVerifier {
	if c == nil {
		c = clock.New()
	}
	if maxSkew <= 0 {
		maxSkew = DefaultMaxSkew
	}
	seen, err := lru.New[string, struct{}](DefaultReplayCacheSize)
	if err != nil {
		// Only returned for a non-positive size.
		panic(err)
	}
	return &SignatureVerifier{clock: c, maxSkew: maxSkew, seen: seen}
}

// SigningText returns the text a caller signs for a request.
func SigningText(method, path, rawQuery string, body []byte, ts int64) string {
	return fmt.Sprintf("ballot:%s:%s?%s:%s:%d",
		method, path, rawQuery, hexutil.Encode(crypto.Keccak256(body)), ts)
}

// Verify checks sig over the request described by method, path, query,
// body and the timestamp header value.
func (v *SignatureVerifier) Verify(claimed types.Address, method, path, rawQuery string, body []byte, timestamp, sig string) error {
	if !claimed.IsHex() {
		return fmt.Errorf("%w: caller %q is not a hex address", ErrBadSignature, claimed)
	}
	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: timestamp %q", ErrBadSignature, timestamp)
	}
	if skew := v.clock.Now().Sub(time.Unix(ts, 0)); skew > v.maxSkew || skew < -v.maxSkew {
		return fmt.Errorf("%w: timestamp outside %s window", ErrBadSignature, v.maxSkew)
	}

	raw, err := hexutil.Decode(sig)
	if err != nil || len(raw) != crypto.SignatureLength {
		return fmt.Errorf("%w: malformed signature", ErrBadSignature)
	}
	if raw[crypto.RecoveryIDOffset] >= 27 {
		raw[crypto.RecoveryIDOffset] -= 27
	}

	hash := accounts.TextHash([]byte(SigningText(method, path, rawQuery, body, ts)))
	pub, err := crypto.SigToPub(hash, raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	signer := types.NormalizeAddress(crypto.PubkeyToAddress(*pub).Hex())
	if !signer.Equal(claimed) {
		return fmt.Errorf("%w: signed by %s", ErrBadSignature, signer)
	}

	// Keyed on the message, not the signature bytes, so a re-encoded
	// signature over the same text is still a replay.
	if seen, _ := v.seen.ContainsOrAdd(signer.String()+":"+hexutil.Encode(hash), struct{}{}); seen {
		return ErrReplayedSignature
	}
	return nil
}
