package geo_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/geo"
	"github.com/orcaclubpro/united-tactical-defense-sub002/internal/testsupport"
)

func TestResolverWithoutDatabase(t *testing.T) {
	resolver := geo.NewResolver("", testsupport.GetLogger())
	defer resolver.Close()

	assert.Equal(t, geo.UnknownRegion, resolver.RegionForIP("8.8.8.8"))
	assert.Equal(t, geo.UnknownRegion, resolver.RegionForIP(""))
	assert.Equal(t, geo.UnknownRegion, resolver.RegionForIP("not-an-ip"))
}

func TestResolverWithMissingDatabaseFile(t *testing.T) {
	resolver := geo.NewResolver("/nonexistent/GeoLite2-Country.mmdb", testsupport.GetLogger())
	defer resolver.Close()

	assert.Equal(t, geo.UnknownRegion, resolver.RegionForIP("8.8.8.8"))
}

func TestDisplayName(t *testing.T) {
	resolver := geo.NewResolver("", testsupport.GetLogger())
	defer resolver.Close()

	assert.Equal(t, "United States", resolver.DisplayName("US"))
	assert.Equal(t, "Spain", resolver.DisplayName("es"))
	assert.Equal(t, "Unknown", resolver.DisplayName(""))
	assert.Equal(t, "Unknown", resolver.DisplayName(geo.UnknownRegion))
	assert.Equal(t, "Zz", resolver.DisplayName("ZZ"))
}
