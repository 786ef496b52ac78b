package identity

import (
	"strings"

	portal_errors "medportal/pkg/errors"
)

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	return r == RoleDoctor || r == RolePatient
}

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ValidateAddress checks that addr looks like a base58 wallet public key.
func ValidateAddress(addr string) error {
	if len(addr) < 32 || len(addr) > 44 {
		return portal_errors.ErrInvalidInput
	}
	for _, c := range addr {
		if !strings.ContainsRune(base58Alphabet, c) {
			return portal_errors.ErrInvalidInput
		}
	}
	return nil
}

// Resolver decides which role a wallet plays in the portal.
type Resolver struct {
	markers []string
}

func NewResolver(doctorMarkers []string) *Resolver {
	markers := make([]string, 0, len(doctorMarkers))
	for _, m := range doctorMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}
	return &Resolver{markers: markers}
}

// RoleFor returns RoleDoctor when any configured marker occurs in the
// address, ignoring case. Every other wallet is a patient.
func (r *Resolver) RoleFor(addr string) Role {
	lower := strings.ToLower(addr)
	for _, m := range r.markers {
		if strings.Contains(lower, m) {
			return RoleDoctor
		}
	}
	return RolePatient
}
