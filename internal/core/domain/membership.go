package domain

import "time"

// Membership binds a user to a club, carrying the credentials the CRM
// adapter authenticates with.
type Membership struct {
	ClubID          string
	UserID          string
	Credentials     Credentials
	DisplayDuration time.Duration
	LocalTZ         *time.Location
}

// NewMembership validates and constructs a Membership.
func NewMembership(clubID, userID string, creds Credentials, displayDuration time.Duration, localTZ *time.Location) (Membership, error) {
	if clubID == "" {
		return Membership{}, NewValidationError("club_id must not be empty", nil)
	}
	if userID == "" {
		return Membership{}, NewValidationError("user_id must not be empty", nil)
	}
	if localTZ == nil {
		return Membership{}, NewValidationError("local_tz must not be nil", nil)
	}
	return Membership{
		ClubID:          clubID,
		UserID:          userID,
		Credentials:     creds,
		DisplayDuration: displayDuration,
		LocalTZ:         localTZ,
	}, nil
}
