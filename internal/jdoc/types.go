package jdoc

import (
	"encoding/json"
	"strings"
)

// Link relation names used by the platform.
const (
	RelConnections      = "connections"
	RelManageConnection = "manage_connection"
	RelNextPage         = "nextPage"
)

// Link is a hypermedia link attached to platform resources.
type Link struct {
	Rel string `json:"rel"`
	URI string `json:"uri"`
}

// listEnvelope is the common paginated collection shape.
type listEnvelope struct {
	Values []json.RawMessage `json:"values"`
	Links  []Link            `json:"links"`
	Total  int               `json:"total"`
}

func findLink(links []Link, rel string) (string, bool) {
	for _, l := range links {
		if l.Rel == rel && strings.TrimSpace(l.URI) != "" {
			return l.URI, true
		}
	}
	return "", false
}

// Organization is a platform organization as listed for the user.
type Organization struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Type     string          `json:"type"`
	Country  string          `json:"country"`
	TimeZone string          `json:"timeZone"`
	Member   bool            `json:"member"`
	Internal bool            `json:"internal"`
	Links    []Link          `json:"links"`
	Raw      json.RawMessage `json:"-"`
}

// Link returns the URI of the first link with the given relation.
func (o Organization) Link(rel string) (string, bool) { return findLink(o.Links, rel) }

// Measurement is the platform {value, valueAsDouble, unit} object.
type Measurement struct {
	Value         *float64 `json:"value"`
	ValueAsDouble *float64 `json:"valueAsDouble"`
	Unit          string   `json:"unit"`
}

// Number prefers valueAsDouble over value.
func (m *Measurement) Number() *float64 {
	if m == nil {
		return nil
	}
	if m.ValueAsDouble != nil {
		return m.ValueAsDouble
	}
	return m.Value
}

// Point is one boundary vertex.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Ring is a closed list of points; Type is "exterior" or "interior".
type Ring struct {
	Points []Point `json:"points"`
	Type   string  `json:"type"`
}

// Multipolygon groups the rings of one polygon.
type Multipolygon struct {
	Rings []Ring `json:"rings"`
}

// Boundary is an embedded field boundary.
type Boundary struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Active        *bool          `json:"active"`
	Area          *Measurement   `json:"area"`
	Multipolygons []Multipolygon `json:"multipolygons"`
}

// Field is a platform field, optionally with embedded boundaries.
type Field struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	ExternalID string          `json:"externalId"`
	Archived   bool            `json:"archived"`
	Boundaries []Boundary      `json:"boundaries"`
	Links      []Link          `json:"links"`
	Raw        json.RawMessage `json:"-"`
}
