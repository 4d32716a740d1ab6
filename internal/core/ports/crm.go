package ports

import (
	"context"
	"net/http"

	"github.com/sean-rowe/teeforecast/internal/core/domain"
)

// AuthStrategy is one strategy per CRM authentication style. Apply must
// never let a credential value end up in anything used to build a cache
// key.
type AuthStrategy interface {
	// Apply mutates req to carry authentication for creds.
	Apply(req *http.Request, creds domain.Credentials) error

	// BuildURL optionally augments base with credential/query parameters,
	// used by the URL-parameter family.
	BuildURL(base string, creds domain.Credentials, query map[string]string) (string, error)
}

// RawReservation is the provider-native reservation record a CRM adapter's
// ListReservations returns, before Parse normalizes it.
type RawReservation struct {
	// Opaque is the provider's original payload fragment for this
	// reservation, carried through to Reservation.Raw unparsed.
	Opaque []byte
}

// CRMAdapter is one adapter per tee-sheet system.
type CRMAdapter interface {
	// ListReservations fetches the membership's reservations for the next
	// horizonDays.
	ListReservations(ctx context.Context, membership domain.Membership, horizonDays int) ([]RawReservation, error)

	// ListFlightPlayers fetches the full flight for raw, when the adapter's
	// flow requires a second call; the default no-op implementation
	// returns the players already embedded in raw.
	ListFlightPlayers(ctx context.Context, membership domain.Membership, raw RawReservation) ([]domain.Player, error)

	// Parse normalizes raw into the common Reservation model.
	Parse(raw RawReservation) (domain.Reservation, error)
}
