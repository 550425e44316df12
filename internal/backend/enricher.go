package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/suspectuso/proxipay/internal/presence"
)

// ProfileEnricher resolves a nearby identifier to a name and picture.
type ProfileEnricher struct {
	client *Client
	log    *slog.Logger
}

func NewProfileEnricher(client *Client, log *slog.Logger) *ProfileEnricher {
	return &ProfileEnricher{client: client, log: log}
}

// Enrich returns the profile for identifier. A missing picture is not an
// error; a failed name lookup is.
func (e *ProfileEnricher) Enrich(ctx context.Context, identifier string) (presence.Profile, error) {
	var out presence.Profile

	pic, err := e.client.GetProfilePicture(ctx, identifier)
	if err != nil {
		e.log.Debug("profile picture lookup", "identifier", identifier, "error", err)
	} else if pic.HasPicture {
		out.ImageURL = pic.ImageURL
	}

	p, err := e.client.LookupProfile(ctx, identifier)
	if err != nil {
		return out, fmt.Errorf("lookup profile %s: %w", identifier, err)
	}
	out.DisplayName = p.FullName()
	return out, nil
}
