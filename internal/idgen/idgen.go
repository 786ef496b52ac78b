// Package idgen generates mint addresses for artifact records.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Base58 alphabet, so generated addresses pass identity.ValidateAddress.
const Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

const (
	MintLength = 44

	// SimulatedPrefix marks addresses that were never registered on the ledger.
	SimulatedPrefix = "sim"
)

// MintAddress returns a fresh address for a confirmed record.
func MintAddress() (string, error) {
	id, err := nanoid.Generate(Alphabet, MintLength)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return id, nil
}

// SimulatedMintAddress returns a placeholder address for an unconfirmed record.
func SimulatedMintAddress() (string, error) {
	id, err := nanoid.Generate(Alphabet, MintLength-len(SimulatedPrefix))
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return SimulatedPrefix + id, nil
}
