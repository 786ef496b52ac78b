package proxy

import (
	"medportal/internal/domain/artifact"
	"medportal/internal/identity"
	portal_errors "medportal/pkg/errors"
)

// AccessControl decides what a wallet may do with an artifact. Only the two
// parties named on a record ever get access to it.
type AccessControl struct{}

func NewAccessControl() *AccessControl {
	return &AccessControl{}
}

func (a *AccessControl) CanView(wallet string, rec artifact.Record) error {
	if wallet == "" || (wallet != rec.ProducerID && wallet != rec.RecipientID) {
		return portal_errors.ErrForbidden
	}
	return nil
}

// CanSetStatus checks who may request a move to status. The recipient
// acknowledges a report; the producer revokes it or discards an unconfirmed
// one. Confirmation is never requested directly.
func (a *AccessControl) CanSetStatus(wallet string, rec artifact.Record, status artifact.Status) error {
	switch status {
	case artifact.StatusReviewed:
		return a.ensureParty(wallet, rec.RecipientID)
	case artifact.StatusRevoked, artifact.StatusFailed:
		return a.ensureParty(wallet, rec.ProducerID)
	default:
		return portal_errors.ErrInvalidTransition
	}
}

func (a *AccessControl) CanReconcile(wallet string, rec artifact.Record) error {
	return a.ensureParty(wallet, rec.ProducerID)
}

// CanWatch returns the role in which viewer may open target's dashboard.
// Anyone may return to their own wallet; doctors may open a patient's
// received reports.
func (a *AccessControl) CanWatch(viewer string, role identity.Role, target string) (identity.Role, error) {
	if err := identity.ValidateAddress(target); err != nil {
		return "", err
	}
	if target == viewer {
		return role, nil
	}
	if role == identity.RoleDoctor {
		return identity.RolePatient, nil
	}
	return "", portal_errors.ErrForbidden
}

func (a *AccessControl) ensureParty(wallet, party string) error {
	if wallet == "" || wallet != party {
		return portal_errors.ErrForbidden
	}
	return nil
}
