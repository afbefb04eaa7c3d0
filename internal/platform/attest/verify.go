package attest

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Digest returns the keccak256 hash a relay signs: the source URL, verified
// server name and response body joined by '|'. All three are covered so none
// can be swapped out from under the signature.
func Digest(r Record) []byte {
	return crypto.Keccak256(
		[]byte(r.SourceURL),
		[]byte{'|'},
		[]byte(r.ServerName),
		[]byte{'|'},
		[]byte(r.ResponseData),
	)
}

// RecoverSigner recovers the address that signed the record.
func RecoverSigner(r Record) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(r.Signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("attest: decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("attest: signature is %d bytes, want %d", len(sig), crypto.SignatureLength)
	}

	// Accept both the raw recovery id and the legacy 27/28 form.
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig = append([]byte(nil), sig...)
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(Digest(r), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("attest: recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// VerifySigner checks that the record was signed by the expected attestor
// address (hex, with or without 0x prefix).
func VerifySigner(r Record, attestor string) error {
	if !common.IsHexAddress(attestor) {
		return fmt.Errorf("attest: malformed attestor address %q", attestor)
	}
	signer, err := RecoverSigner(r)
	if err != nil {
		return err
	}
	if signer != common.HexToAddress(attestor) {
		return fmt.Errorf("attest: record signed by %s, want %s", signer.Hex(), attestor)
	}
	return nil
}
