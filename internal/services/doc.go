// Package services talks to the Spotify accounts service.
//
// [SpotifyService] builds the authorize URL for the fixed scope list and exchanges
// authorization codes for tokens. The exchange uses [oauth2.AuthStyleInParams], so the client
// credentials travel in the form body next to grant_type, code and redirect_uri.
//
// A failed exchange comes back as an [*ExchangeError] carrying the upstream status, the OAuth
// error code and description, and the raw response body.
package services
