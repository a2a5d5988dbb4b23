// Package geo resolves client IPs to regions for the geography dimension.
// The GeoLite2 database is optional; without it every lookup yields the
// unknown region.
package geo

import (
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/oschwald/geoip2-golang"
	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownRegion marks lookups that could not be resolved.
const UnknownRegion = "__unknown_region__"

// Resolver wraps an optional GeoLite2 reader. A nil reader is valid and all
// lookups degrade to UnknownRegion.
type Resolver struct {
	mu        sync.RWMutex
	reader    *geoip2.Reader
	logger    *slog.Logger
	countries *gountries.Query
}

// NewResolver opens the GeoLite2 database at path. A missing or unreadable
// database is not an error; geography enrichment is simply disabled.
func NewResolver(path string, logger *slog.Logger) *Resolver {
	r := &Resolver{
		logger:    logger,
		countries: gountries.New(),
	}

	if path == "" {
		logger.Debug("GeoIP database path not configured - geography dimension disabled")
		return r
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Info("GeoLite2 database not found - geography dimension disabled",
			slog.String("path", path))
		return r
	}

	reader, err := geoip2.Open(path)
	if err != nil {
		logger.Warn("Failed to open GeoLite2 database - geography dimension disabled",
			slog.String("path", path),
			slog.Any("error", err))
		return r
	}

	r.reader = reader
	logger.Info("GeoLite2 database loaded", slog.String("path", path))
	return r
}

// Close releases the underlying reader.
func (r *Resolver) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reader != nil {
		r.reader.Close()
		r.reader = nil
	}
}

// RegionForIP returns the ISO country code for an IP, or UnknownRegion.
func (r *Resolver) RegionForIP(ipAddress string) string {
	r.mu.RLock()
	reader := r.reader
	r.mu.RUnlock()

	if reader == nil || ipAddress == "" {
		return UnknownRegion
	}

	ip := net.ParseIP(ipAddress)
	if ip == nil || ip.IsLoopback() || ip.IsPrivate() {
		return UnknownRegion
	}

	record, err := reader.Country(ip)
	if err != nil || record.Country.IsoCode == "" {
		return UnknownRegion
	}

	return record.Country.IsoCode
}

// DisplayName converts a region code into a human-readable country name for
// report output. Unknown codes fall back to a title-cased echo of the input.
func (r *Resolver) DisplayName(region string) string {
	if region == "" || region == UnknownRegion {
		return "Unknown"
	}

	upper := cases.Upper(language.AmericanEnglish).String(region)
	if country, err := r.countries.FindCountryByAlpha(upper); err == nil {
		return country.Name.Common
	}

	return cases.Title(language.AmericanEnglish).String(strings.ToLower(region))
}
