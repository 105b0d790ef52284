package api

import "time"

// expiryLayout matches the expiry timestamps issued by the bootstrap
// endpoint. The fractional part is optional when parsing.
const expiryLayout = "2006-01-02T15:04:05.999999"

// AuthToken is the bearer credential a Manager presents to the backend.
// Bot tokens are synthesized locally for classified crawlers and are
// never re-bootstrapped.
type AuthToken struct {
	AccessToken string `json:"access_token"`
	ExpireIn    string `json:"expire_in"`
	Bot         bool   `json:"bot"`
}

// Empty reports whether no credential is held.
func (t AuthToken) Empty() bool {
	return t.AccessToken == ""
}

// Expired reports whether the token's expiry has passed. A missing or
// unparseable expiry counts as expired so a fresh bootstrap happens.
func (t AuthToken) Expired() bool {
	expires, err := time.Parse(expiryLayout, t.ExpireIn)
	if err != nil {
		return true
	}
	return time.Now().After(expires)
}

// BotToken synthesizes a far-future token for a classified crawler tier.
func BotToken(token string) AuthToken {
	return AuthToken{
		AccessToken: token,
		ExpireIn:    time.Now().AddDate(1, 0, 0).Format(expiryLayout),
		Bot:         true,
	}
}
