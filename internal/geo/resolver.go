package geo

import (
	"Clixy-Backend/internal/domain"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	geoip2 "github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	CountryUnknown = domain.CountryUnknown
	CountryLocal   = domain.CountryLocal
)

// Config configures a Resolver.
type Config struct {
	// TrustEdgeHeaders enables country headers set by the CDN in front of the service.
	TrustEdgeHeaders bool
	// EdgeHeaders are checked in order; the first non-empty value wins.
	EdgeHeaders []string
	// Endpoint is the base URL of an ip-api.com compatible lookup service.
	Endpoint string
	// Timeout bounds a single outbound lookup.
	Timeout time.Duration
	// RequestsPerMinute caps outbound lookups. Zero or less means unlimited.
	RequestsPerMinute int
	// MMDBPath is an optional MaxMind country database consulted before the network.
	MMDBPath string
}

// Resolver maps request metadata to a short country code.
//
// Resolution never fails: every error path yields CountryUnknown. It is meant
// to run off the request path since the network fallback may take up to Timeout.
type Resolver struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	mmdb    *geoip2.Reader
	log     *zap.Logger
}

// NewResolver builds a Resolver. It fails only when MMDBPath is set but cannot be opened.
func NewResolver(cfg Config, log *zap.Logger) (*Resolver, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")

	r := &Resolver{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: newOutboundLimiter(cfg.RequestsPerMinute),
		log:     log,
	}

	if cfg.MMDBPath != "" {
		db, err := geoip2.Open(cfg.MMDBPath)
		if err != nil {
			return nil, fmt.Errorf("open geoip database %s: %w", cfg.MMDBPath, err)
		}
		r.mmdb = db
		log.Info("geoip database loaded", zap.String("path", cfg.MMDBPath))
	}

	return r, nil
}

// isCountryCode accepts the two or three character codes CDNs send,
// including pseudo codes such as "XX" and "T1".
func isCountryCode(v string) bool {
	if len(v) < 2 || len(v) > 3 {
		return false
	}
	for i := 0; i < len(v); i++ {
		c := v[i]
		if !('a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

func newOutboundLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := max(perMinute/4, 1)
	return rate.NewLimiter(rate.Limit(float64(perMinute)/60), burst)
}

// Close releases the geoip database, if any.
func (r *Resolver) Close() error {
	if r.mmdb != nil {
		return r.mmdb.Close()
	}
	return nil
}

// Resolve returns the country for a request, in order of preference: a trusted
// edge header, Local for loopback clients, the local database, then the lookup service.
func (r *Resolver) Resolve(ctx context.Context, header http.Header, remoteAddr string) string {
	if r.cfg.TrustEdgeHeaders {
		for _, name := range r.cfg.EdgeHeaders {
			if v := strings.TrimSpace(header.Get(name)); isCountryCode(v) {
				return strings.ToUpper(v)
			}
		}
	}

	ip := ClientIP(header, remoteAddr)
	if ip == "" {
		return CountryUnknown
	}
	if IsLoopback(ip) {
		return CountryLocal
	}

	addr, err := netip.ParseAddr(ip)
	if err != nil {
		r.log.Debug("client address is not an IP", zap.String("ip", ip))
		return CountryUnknown
	}
	addr = addr.Unmap()

	if code := r.lookupLocal(addr); code != "" {
		return code
	}
	return r.lookupRemote(ctx, addr)
}

func (r *Resolver) lookupLocal(addr netip.Addr) string {
	if r.mmdb == nil {
		return ""
	}
	record, err := r.mmdb.Country(net.IP(addr.AsSlice()))
	if err != nil {
		r.log.Debug("geoip database lookup failed", zap.String("ip", addr.String()), zap.Error(err))
		return ""
	}
	return strings.ToUpper(record.Country.IsoCode)
}

type lookupResponse struct {
	CountryCode string `json:"countryCode"`
}

func (r *Resolver) lookupRemote(ctx context.Context, addr netip.Addr) string {
	if r.cfg.Endpoint == "" {
		return CountryUnknown
	}
	if !r.limiter.Allow() {
		r.log.Warn("geolocation lookup throttled", zap.String("ip", addr.String()))
		return CountryUnknown
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	endpoint := r.cfg.Endpoint + "/" + url.PathEscape(addr.String()) + "?fields=countryCode"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		r.log.Warn("failed to build geolocation request", zap.Error(err))
		return CountryUnknown
	}

	resp, err := r.client.Do(req)
	if err != nil {
		r.log.Warn("geolocation lookup failed", zap.String("ip", addr.String()), zap.Error(err))
		return CountryUnknown
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		r.log.Warn("geolocation lookup returned non-200", zap.String("ip", addr.String()), zap.Int("status", resp.StatusCode))
		return CountryUnknown
	}

	var body lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		r.log.Warn("failed to decode geolocation response", zap.Error(err))
		return CountryUnknown
	}

	code := strings.ToUpper(strings.TrimSpace(body.CountryCode))
	if code == "" {
		return CountryUnknown
	}
	return code
}
