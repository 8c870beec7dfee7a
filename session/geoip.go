package session

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"

	serrors "github.com/veggydawson/frappe/errors"
)

// GeoResolver looks up the country for a client address. Lookups are
// best-effort everywhere in this package: a failure only means the session
// payload omits its country field.
type GeoResolver interface {
	CountryByIP(ip string) (string, error)
}

// NewGeoResolver opens a MaxMind database at dbPath. An empty or unreadable
// path degrades to a resolver that never matches.
func NewGeoResolver(dbPath string) GeoResolver {
	if dbPath == "" {
		return noopResolver{}
	}

	db, err := geoip2.Open(dbPath)
	if err != nil {
		log.Warn().Err(err).Str("path", dbPath).Msg("GeoIP database unavailable, country lookup disabled")
		return noopResolver{}
	}
	return &maxmindResolver{db: db}
}

type maxmindResolver struct {
	db *geoip2.Reader
}

func (r *maxmindResolver) CountryByIP(ip string) (string, error) {
	addr := net.ParseIP(ip)
	if addr == nil {
		return "", serrors.NewGeoLookupUnavailable(fmt.Errorf("invalid address %q", ip))
	}

	record, err := r.db.Country(addr)
	if err != nil {
		return "", serrors.NewGeoLookupUnavailable(err)
	}
	return record.Country.IsoCode, nil
}

// Close releases the underlying database.
func (r *maxmindResolver) Close() error {
	return r.db.Close()
}

type noopResolver struct{}

func (noopResolver) CountryByIP(string) (string, error) {
	return "", nil
}
