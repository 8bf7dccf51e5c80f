package evm

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/seabucks/dealer"
)

// QuoteTypeName is the EIP-712 primary type of a quote.
const QuoteTypeName = "Quote"

var quoteTypes = apitypes.Types{
	"EIP712Domain": []apitypes.Type{
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	QuoteTypeName: []apitypes.Type{
		{Name: "tokenIn", Type: "address"},
		{Name: "tokenOut", Type: "address"},
		{Name: "amountIn", Type: "uint256"},
		{Name: "amountOut", Type: "uint256"},
		{Name: "recipient", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	},
}

// QuoteTypedData builds the EIP-712 typed data for a quote under the given domain.
func QuoteTypedData(q dealer.Quote, domain dealer.Domain) apitypes.TypedData {
	return apitypes.TypedData{
		Types:       quoteTypes,
		PrimaryType: QuoteTypeName,
		Domain: apitypes.TypedDataDomain{
			Name:              domain.Name,
			Version:           domain.Version,
			ChainId:           (*math.HexOrDecimal256)(orZero(domain.ChainID)),
			VerifyingContract: domain.VerifyingContract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"tokenIn":   q.TokenIn.Hex(),
			"tokenOut":  q.TokenOut.Hex(),
			"amountIn":  (*math.HexOrDecimal256)(orZero(q.AmountIn)),
			"amountOut": (*math.HexOrDecimal256)(orZero(q.AmountOut)),
			"recipient": q.Recipient.Hex(),
			"nonce":     (*math.HexOrDecimal256)(orZero(q.Nonce)),
			"deadline":  (*math.HexOrDecimal256)(orZero(q.Deadline)),
		},
	}
}

// DomainSeparator returns hashStruct(EIP712Domain) for the domain.
func DomainSeparator(domain dealer.Domain) (common.Hash, error) {
	typedData := QuoteTypedData(dealer.Quote{}, domain)
	separator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	return common.BytesToHash(separator), nil
}

// QuoteDigest computes keccak256("\x19\x01" || domainSeparator || hashStruct(quote)).
func QuoteDigest(q dealer.Quote, domain dealer.Domain) (common.Hash, error) {
	typedData := QuoteTypedData(q, domain)

	domainSeparator, err := typedData.HashStruct("EIP712Domain", typedData.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}

	messageHash, err := typedData.HashStruct(QuoteTypeName, typedData.Message)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash quote: %w", err)
	}

	rawData := append([]byte{0x19, 0x01}, append(domainSeparator, messageHash...)...)
	return crypto.Keccak256Hash(rawData), nil
}

// Signer signs quotes with the dealer key. Signing is a pure function of its inputs
// and the Signer may be shared between goroutines.
type Signer struct {
	key *DealerKey
}

// NewSigner creates a quote signer. A nil key yields dealer.ErrSigningUnavailable.
func NewSigner(key *DealerKey) (*Signer, error) {
	if key == nil || key.privateKey == nil {
		return nil, dealer.ErrSigningUnavailable
	}
	return &Signer{key: key}, nil
}

// Address returns the dealer address that signatures recover to.
func (s *Signer) Address() common.Address {
	return s.key.Address()
}

// Sign binds the quote to the dealer's authority and returns a 0x-prefixed 65-byte signature.
func (s *Signer) Sign(q dealer.Quote, domain dealer.Domain) (string, error) {
	if s == nil || s.key == nil || s.key.privateKey == nil {
		return "", dealer.ErrSigningUnavailable
	}

	digest, err := QuoteDigest(q, domain)
	if err != nil {
		return "", dealer.NewDealerError(dealer.ErrCodeSigningFailed, "quote digest unavailable", err)
	}

	signature, err := s.key.sign(digest.Bytes())
	if err != nil {
		return "", dealer.NewDealerError(dealer.ErrCodeSigningFailed, "failed to sign quote", err)
	}
	return hexutil.Encode(signature), nil
}

// SignQuote signs q and returns the resulting bearer instruction.
func (s *Signer) SignQuote(q dealer.Quote, domain dealer.Domain) (*dealer.SignedQuote, error) {
	signature, err := s.Sign(q, domain)
	if err != nil {
		return nil, err
	}
	return &dealer.SignedQuote{Quote: q, Domain: domain, Signature: signature}, nil
}

// RecoverSigner returns the address that produced signature over the quote digest.
// High-s signatures and V values outside {0, 1, 27, 28} are rejected.
func RecoverSigner(q dealer.Quote, domain dealer.Domain, signature string) (common.Address, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != crypto.SignatureLength {
		return common.Address{}, dealer.ErrInvalidSignature
	}

	v := sig[64]
	if v >= 27 {
		v -= 27
	}
	r := new(big.Int).SetBytes(sig[:32])
	sv := new(big.Int).SetBytes(sig[32:64])
	if !crypto.ValidateSignatureValues(v, r, sv, true) {
		return common.Address{}, dealer.ErrInvalidSignature
	}

	digest, err := QuoteDigest(q, domain)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", dealer.ErrInvalidSignature, err)
	}

	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	normalized[64] = v

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, dealer.ErrInvalidSignature
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify reports whether the signed quote was signed by want.
func Verify(sq dealer.SignedQuote, want common.Address) error {
	got, err := RecoverSigner(sq.Quote, sq.Domain, sq.Signature)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: recovered %s", dealer.ErrInvalidSignature, got.Hex())
	}
	return nil
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
