package useragent

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	ua "github.com/mileusna/useragent"
	"github.com/ua-parser/uap-go/uaparser"
	"go.uber.org/zap"
)

// Device types reported by ParseUserAgent.
const (
	TypeMobile  = "mobile"
	TypeTablet  = "tablet"
	TypeDesktop = "desktop"
	TypeBot     = "bot"
	TypeUnknown = "unknown"
)

// Device classes stored with a click.
const (
	ClassMobile  = "Mobile"
	ClassDesktop = "Desktop"
	ClassUnknown = "Unknown"
)

const unknown = "Unknown"

// MaxLength is the longest User-Agent prefix handed to the regex parsers.
// Real agents stay well below it; longer values are cut before parsing.
const MaxLength = 512

// Parser wraps the User-Agent parser with enhanced device type detection.
// When the uap-go definitions are unavailable it falls back to mileusna/useragent.
type Parser struct {
	parser *uaparser.Parser
	log    *zap.Logger
}

// DeviceInfo represents parsed device information
type DeviceInfo struct {
	DeviceType string // mobile, tablet, desktop, bot, unknown
	Browser    string // Chrome, Firefox, Safari, etc.
	OS         string // Windows, iOS, Android, etc.
	Raw        string // Original User-Agent string
}

// NewParser creates a parser from a uap-core regexes.yaml file.
// An empty path uses the definitions bundled with uap-go.
func NewParser(regexFilePath string, log *zap.Logger) (*Parser, error) {
	if regexFilePath == "" {
		log.Info("User-Agent parser initialized with bundled definitions")
		return &Parser{parser: uaparser.NewFromSaved(), log: log}, nil
	}

	regexBytes, err := os.ReadFile(regexFilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read regexes file %s: %w", regexFilePath, err)
	}

	parser, err := uaparser.NewFromBytes(regexBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to create User-Agent parser: %w", err)
	}

	log.Info("User-Agent parser initialized successfully", zap.String("regexes_file", regexFilePath))

	return &Parser{
		parser: parser,
		log:    log,
	}, nil
}

// NewFallbackParser creates a parser that only uses the lightweight mileusna/useragent detector.
func NewFallbackParser(log *zap.Logger) *Parser {
	return &Parser{log: log}
}

// DeviceClass maps a User-Agent to the stored device class:
// Mobile for phones and tablets, Desktop for everything else, Unknown when ua is empty.
func (p *Parser) DeviceClass(userAgent string) string {
	return p.ParseUserAgent(userAgent).Class()
}

// Class collapses DeviceType into Mobile, Desktop or Unknown.
func (d *DeviceInfo) Class() string {
	if strings.TrimSpace(d.Raw) == "" {
		return ClassUnknown
	}
	switch d.DeviceType {
	case TypeMobile, TypeTablet:
		return ClassMobile
	}
	return ClassDesktop
}

// ParseUserAgent parses a User-Agent string and returns detailed device information.
// It never panics; malformed input yields unknown fields.
func (p *Parser) ParseUserAgent(userAgent string) (info *DeviceInfo) {
	info = &DeviceInfo{
		DeviceType: TypeUnknown,
		Browser:    unknown,
		OS:         unknown,
		Raw:        userAgent,
	}
	if strings.TrimSpace(userAgent) == "" {
		return info
	}
	userAgent = Truncate(userAgent, MaxLength)
	info.Raw = userAgent

	defer func() {
		if r := recover(); r != nil {
			p.log.Warn("User-Agent parser panicked", zap.Any("panic", r), zap.String("user_agent", userAgent))
			info = &DeviceInfo{DeviceType: TypeUnknown, Browser: unknown, OS: unknown, Raw: userAgent}
		}
	}()

	if p.parser == nil {
		return p.parseFallback(userAgent)
	}

	client := p.parser.Parse(userAgent)
	info.Browser = formatFamily(client.UserAgent.Family)
	info.OS = formatFamily(client.Os.Family)
	info.DeviceType = determineDeviceType(client, userAgent)

	p.log.Debug("parsed User-Agent",
		zap.String("device_type", info.DeviceType),
		zap.String("browser", info.Browser),
		zap.String("os", info.OS),
	)

	return info
}

func (p *Parser) parseFallback(userAgent string) *DeviceInfo {
	parsed := ua.Parse(userAgent)

	info := &DeviceInfo{
		DeviceType: TypeUnknown,
		Browser:    formatFamily(parsed.Name),
		OS:         formatFamily(parsed.OS),
		Raw:        userAgent,
	}

	switch {
	case parsed.Bot:
		info.DeviceType = TypeBot
	case parsed.Tablet:
		info.DeviceType = TypeTablet
	case parsed.Mobile:
		info.DeviceType = TypeMobile
	case parsed.Desktop:
		info.DeviceType = TypeDesktop
	}
	return info
}

// determineDeviceType determines the device type based on parsed client info and raw User-Agent
func determineDeviceType(client *uaparser.Client, userAgent string) string {
	if isBot(client, userAgent) {
		return TypeBot
	}

	// Check if device family indicates mobile/tablet
	deviceFamily := client.Device.Family
	if deviceFamily != "" && deviceFamily != "Other" {
		if containsAny(deviceFamily, tabletDevices) {
			return TypeTablet
		}
		if containsAny(deviceFamily, mobileDevices) {
			return TypeMobile
		}
	}

	osFamily := client.Os.Family
	if containsAny(osFamily, mobileOS) {
		if isTabletOS(osFamily, userAgent) {
			return TypeTablet
		}
		return TypeMobile
	}

	if containsAny(osFamily, desktopOS) {
		return TypeDesktop
	}

	// Generic mobile marker for families uap-go does not know yet.
	if containsFold(userAgent, "Mobile") {
		return TypeMobile
	}

	return TypeUnknown
}

var (
	// In-app browser tokens (WhatsApp, Telegram, ...) are deliberately absent:
	// those are human visitors inside a messenger, not link preview crawlers.
	botIndicators = []string{
		"Googlebot", "Bingbot", "Slurp", "DuckDuckBot", "Baiduspider",
		"YandexBot", "facebookexternalhit", "Twitterbot", "LinkedInBot",
		"SkypeUriPreview", "Slackbot", "Discordbot", "bot/", "crawler", "spider",
	}
	mobileDevices = []string{"iPhone", "iPod", "Android", "BlackBerry", "Windows Phone", "Mobile", "Phone"}
	tabletDevices = []string{"iPad", "Tablet", "Kindle", "Surface"}
	mobileOS      = []string{"iOS", "Android", "Windows Phone", "BlackBerry OS", "Firefox OS", "Sailfish OS"}
	desktopOS     = []string{"Windows", "Mac OS X", "macOS", "Linux", "Ubuntu", "Chrome OS", "FreeBSD", "OpenBSD", "NetBSD"}
)

func isBot(client *uaparser.Client, userAgent string) bool {
	if client.Device.Family == "Spider" {
		return true
	}
	for _, indicator := range botIndicators {
		if containsFold(client.UserAgent.Family, indicator) || containsFold(userAgent, indicator) {
			return true
		}
	}
	return false
}

// isTabletOS checks if the OS/User-Agent indicates a tablet
func isTabletOS(osFamily, userAgent string) bool {
	// iOS devices: differentiate iPad from iPhone
	if containsFold(osFamily, "iOS") {
		return containsFold(userAgent, "iPad")
	}

	// Android tablets typically don't have "Mobile" in User-Agent
	if containsFold(osFamily, "Android") {
		return !containsFold(userAgent, "Mobile")
	}

	return false
}

// Truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Helper functions

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if containsFold(s, n) {
			return true
		}
	}
	return false
}

// containsFold performs case-insensitive substring search
func containsFold(s, substr string) bool {
	if s == "" || substr == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// formatFamily replaces empty and "Other" families with Unknown
func formatFamily(s string) string {
	if s == "" || s == "Other" {
		return unknown
	}
	return s
}
