package analytics

import (
	"Clixy-Backend/pkg/useragent"
	"net/url"
	"strings"
)

const (
	PlatformDirect  = "Direct"
	PlatformUnknown = "Unknown"
)

type platformRule struct {
	name string
	// uaTokens are matched case-insensitively against the User-Agent.
	uaTokens []string
	// hostTokens are matched as substrings of the referrer hostname.
	hostTokens []string
	// hostAliases are short domains matched exactly or as a parent domain.
	hostAliases []string
}

// Order matters: the first matching rule wins for both signals.
var platformRules = []platformRule{
	{name: "WhatsApp", uaTokens: []string{"whatsapp"}, hostTokens: []string{"whatsapp"}, hostAliases: []string{"wa.me"}},
	{name: "Instagram", uaTokens: []string{"instagram"}, hostTokens: []string{"instagram"}},
	{name: "Facebook", uaTokens: []string{"fban", "fbav", "fb_iab", "fbios", "facebook"}, hostTokens: []string{"facebook"}, hostAliases: []string{"fb.com", "fb.me"}},
	{name: "TikTok", uaTokens: []string{"tiktok", "musical_ly", "bytedancewebview"}, hostTokens: []string{"tiktok"}},
	{name: "Snapchat", uaTokens: []string{"snapchat"}, hostTokens: []string{"snapchat"}},
	{name: "Twitter", uaTokens: []string{"twitter"}, hostTokens: []string{"twitter"}, hostAliases: []string{"x.com", "t.co"}},
	{name: "Telegram", uaTokens: []string{"telegram"}, hostTokens: []string{"telegram"}, hostAliases: []string{"t.me"}},
	{name: "LinkedIn", uaTokens: []string{"linkedinapp", "linkedin"}, hostTokens: []string{"linkedin"}, hostAliases: []string{"lnkd.in"}},
	{name: "Discord", uaTokens: []string{"discord"}, hostTokens: []string{"discord"}},
	{name: "YouTube", uaTokens: []string{"youtube"}, hostTokens: []string{"youtube"}, hostAliases: []string{"youtu.be"}},
	// Referrer-only platforms.
	{name: "Pinterest", hostTokens: []string{"pinterest"}, hostAliases: []string{"pin.it"}},
	{name: "Reddit", hostTokens: []string{"reddit"}, hostAliases: []string{"redd.it"}},
}

// ClassifyPlatform derives the traffic source label for a click.
//
// In-app browser signatures in the User-Agent take precedence (messenger
// webviews usually send no Referer). Otherwise the referrer hostname is matched
// against known platforms and, failing that, returned as-is.
// Empty strings mean the header was absent.
func ClassifyPlatform(userAgent, referrer string) string {
	if ua := strings.ToLower(strings.TrimSpace(userAgent)); ua != "" {
		for _, rule := range platformRules {
			for _, token := range rule.uaTokens {
				if strings.Contains(ua, token) {
					return rule.name
				}
			}
		}
	}

	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return PlatformDirect
	}

	host, ok := referrerHost(referrer)
	if !ok {
		return PlatformUnknown
	}

	for _, rule := range platformRules {
		for _, token := range rule.hostTokens {
			if strings.Contains(host, token) {
				return rule.name
			}
		}
		for _, alias := range rule.hostAliases {
			if host == alias || strings.HasSuffix(host, "."+alias) {
				return rule.name
			}
		}
	}

	return host
}

// referrerHost returns the lowercased hostname of an absolute URL without a leading "www.".
func referrerHost(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", false
	}
	return strings.TrimPrefix(host, "www."), true
}

// Classification is everything derived from the request headers of one click.
type Classification struct {
	Platform string
	Device   string
	Browser  string
	OS       string
}

// Classifier combines platform detection with User-Agent device parsing.
type Classifier struct {
	ua *useragent.Parser
}

func NewClassifier(parser *useragent.Parser) *Classifier {
	return &Classifier{ua: parser}
}

// Classify never fails; nil pointers are treated as absent headers.
func (c *Classifier) Classify(userAgent, referrer *string) Classification {
	var uaValue, refValue string
	if userAgent != nil {
		uaValue = *userAgent
	}
	if referrer != nil {
		refValue = *referrer
	}

	info := c.ua.ParseUserAgent(uaValue)
	return Classification{
		Platform: ClassifyPlatform(uaValue, refValue),
		Device:   info.Class(),
		Browser:  info.Browser,
		OS:       info.OS,
	}
}
