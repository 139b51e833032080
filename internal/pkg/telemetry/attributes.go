package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys shared by the ranking and catalog spans.
const (
	AttrSpotCount    = attribute.Key("parksmart.spots")
	AttrResultCount  = attribute.Key("parksmart.results")
	AttrExcludeFull  = attribute.Key("parksmart.exclude_full")
	AttrMaxResults   = attribute.Key("parksmart.max_results")
	AttrCatalogCache = attribute.Key("parksmart.catalog.cache")
)

// TracerName is the instrumentation scope of every span this service starts.
const TracerName = "github.com/samirrijal/parksmart"
