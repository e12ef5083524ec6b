package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DeviceMobile  = "Mobile"
	DeviceDesktop = "Desktop"
	DeviceUnknown = "Unknown"

	CountryUnknown = "Unknown"
	CountryLocal   = "Local"
)

// Column widths of the size-limited click columns.
const (
	PlatformMaxLen = 255
	DeviceMaxLen   = 16
	BrowserMaxLen  = 64
	OSMaxLen       = 64
	CountryMaxLen  = 16
)

// Click is one recorded visit produced by a successful redirect.
type Click struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;column:id" json:"id"`
	LinkID      uuid.UUID `gorm:"type:uuid;column:link_id;not null;index" json:"link_id"`
	Referrer    *string   `gorm:"column:referrer;type:text" json:"referrer"`
	UserAgent   *string   `gorm:"column:user_agent;type:text" json:"user_agent"`
	Platform    string    `gorm:"column:platform;size:255;not null;default:'Direct'" json:"platform"`
	Device      string    `gorm:"column:device;size:16;not null;default:'Unknown'" json:"device"`
	Browser     string    `gorm:"column:browser;size:64;not null;default:'Unknown'" json:"browser"`
	OS          string    `gorm:"column:os;size:64;not null;default:'Unknown'" json:"os"`
	Country     string    `gorm:"column:country;size:16;not null;default:'Unknown'" json:"country"`
	VisitorHash string    `gorm:"column:visitor_hash;size:64;index" json:"-"`
	IsUnique    bool      `gorm:"column:is_unique;not null;default:false" json:"is_unique"`
	Timestamp   time.Time `gorm:"column:timestamp;not null;index" json:"timestamp"`

	// Relationships
	Link *Link `gorm:"foreignKey:LinkID" json:"-"`
}

// TableName возвращает название таблицы для GORM
func (Click) TableName() string {
	return "clicks"
}

func (c *Click) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.Timestamp.IsZero() {
		c.Timestamp = time.Now().UTC()
	}
	if c.Device == "" {
		c.Device = DeviceUnknown
	}
	if c.Country == "" {
		c.Country = CountryUnknown
	}
	c.FitColumns()
	return nil
}

// FitColumns cuts the label columns to their widths so inserts never fail on
// an oversized referrer host or header value.
func (c *Click) FitColumns() {
	c.Platform = truncate(c.Platform, PlatformMaxLen)
	c.Device = truncate(c.Device, DeviceMaxLen)
	c.Browser = truncate(c.Browser, BrowserMaxLen)
	c.OS = truncate(c.OS, OSMaxLen)
	c.Country = truncate(c.Country, CountryMaxLen)
}

// truncate keeps at most n characters of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
