package telemetry

import "go.opentelemetry.io/otel/attribute"

// Span attribute keys shared by the search client and the search service.
const (
	AttrEntityType = attribute.Key("search.entity_type")
	AttrPositioned = attribute.Key("search.positioned")
	AttrResults    = attribute.Key("search.results")
	AttrSession    = attribute.Key("explorer.session")
)
