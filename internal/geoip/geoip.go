package geoip

import (
	"encoding/json"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// GeoIP resolves client IPs to IANA timezones using a MaxMind City DB or a
// JSON fallback. Bid requests may carry an IP instead of an explicit
// timezone; the resolved timezone selects the pacing partition.
type GeoIP struct {
	db       *geoip2.Reader
	fallback []record
}

type record struct {
	net      *net.IPNet
	timezone string
}

// Init opens the GeoIP2 database located at path. It returns a GeoIP instance.
// The returned error indicates problems opening the file.
func Init(path string) (*GeoIP, error) {
	g := &GeoIP{}
	db, err := geoip2.Open(path)
	if err == nil {
		g.db = db
		return g, nil
	}

	data, jerr := os.ReadFile(path)
	if jerr != nil {
		return nil, err
	}
	var entries []struct {
		Net      string `json:"net"`
		Timezone string `json:"timezone"`
	}
	if jerr = json.Unmarshal(data, &entries); jerr != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, n, perr := net.ParseCIDR(e.Net); perr == nil {
			g.fallback = append(g.fallback, record{net: n, timezone: e.Timezone})
		}
	}
	return g, nil
}

// Timezone returns the IANA timezone name for the given IP. If the IP is not
// found or the database hasn't been initialised, an empty string is returned.
func (g *GeoIP) Timezone(ip net.IP) string {
	if g == nil {
		return ""
	}
	if g.db != nil {
		rec, err := g.db.City(ip)
		if err == nil && rec.Location.TimeZone != "" {
			return rec.Location.TimeZone
		}
	}
	for _, r := range g.fallback {
		if r.net.Contains(ip) {
			return r.timezone
		}
	}
	return ""
}

// Close releases resources associated with the database.
func (g *GeoIP) Close() error {
	if g != nil && g.db != nil {
		return g.db.Close()
	}
	return nil
}
