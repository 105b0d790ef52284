package crawler

import "strings"

// Kind selects how a bot signature is verified.
type Kind int

const (
	// KindDNS verifies through a PTR -> domain suffix -> A record round
	// trip.
	KindDNS Kind = iota
	// KindIPList verifies against a literal IP allow-list.
	KindIPList
	// KindUnverifiable offers no verification mechanism.
	KindUnverifiable
)

// Signature describes one known crawler: a lower-cased User-Agent
// substring plus its verification descriptor. The registry is an ordered
// slice because lookup is first-match-wins and some patterns (the bare
// "bot" catch-all) must be checked last.
type Signature struct {
	Pattern string
	Kind    Kind
	Domains []string
	IPs     []string
}

var (
	googleDomains = []string{"google.com", "googlebot.com"}
	bingDomains   = []string{"search.msn.com"}
	yahooDomains  = []string{"crawl.yahoo.net"}
	baiduDomains  = []string{"crawl.baidu.com", "crawl.baidu.jp"}
	yandexDomains = []string{"yandex.ru", "yandex.net", "yandex.com"}
	alexaDomains  = []string{"alexa.com"}

	// https://help.duckduckgo.com/duckduckgo-help-pages/results/duckduckbot/
	duckduckIPs = []string{
		"50.16.241.113",
		"50.16.241.114",
		"50.16.241.117",
		"50.16.247.234",
		"52.204.97.54",
		"52.5.190.19",
		"54.197.234.188",
		"54.208.100.253",
		"23.21.227.69",
	}
)

var defaultSignatures = []Signature{
	{Pattern: "googlebot", Kind: KindDNS, Domains: googleDomains},
	{Pattern: "adsbot-google", Kind: KindDNS, Domains: googleDomains},
	{Pattern: "mediapartners-google", Kind: KindDNS, Domains: googleDomains},
	{Pattern: "feedfetcher-google", Kind: KindDNS, Domains: googleDomains},
	{Pattern: "adsbot-google-mobile-apps", Kind: KindDNS, Domains: googleDomains},
	{Pattern: "bingbot", Kind: KindDNS, Domains: bingDomains},
	{Pattern: "bingpreview", Kind: KindDNS, Domains: bingDomains},
	{Pattern: "msnbot", Kind: KindDNS, Domains: bingDomains},
	{Pattern: "slurp", Kind: KindDNS, Domains: yahooDomains},
	{Pattern: "duckduckbot", Kind: KindIPList, IPs: duckduckIPs},
	{Pattern: "baidu", Kind: KindDNS, Domains: baiduDomains},
	{Pattern: "yandex", Kind: KindDNS, Domains: yandexDomains},
	{Pattern: "ia_archiver", Kind: KindDNS, Domains: alexaDomains},
	{Pattern: "facebot", Kind: KindUnverifiable},
	{Pattern: "facebookexternalhit", Kind: KindUnverifiable},
	{Pattern: "aolbuild", Kind: KindUnverifiable},
	{Pattern: "slackbot", Kind: KindUnverifiable},
	{Pattern: "slack-imgproxy", Kind: KindUnverifiable},
	{Pattern: "twitterbot", Kind: KindUnverifiable},
	// Catch-all; must stay last so specific signatures win.
	{Pattern: "bot", Kind: KindUnverifiable},
}

// DefaultSignatures returns the built-in crawler registry in priority
// order.
func DefaultSignatures() []Signature {
	out := make([]Signature, len(defaultSignatures))
	copy(out, defaultSignatures)
	return out
}

// Match returns the first signature whose pattern is a case-insensitive
// substring of userAgent.
func Match(signatures []Signature, userAgent string) (Signature, bool) {
	ua := strings.ToLower(userAgent)
	for _, sig := range signatures {
		if strings.Contains(ua, sig.Pattern) {
			return sig, true
		}
	}
	return Signature{}, false
}
