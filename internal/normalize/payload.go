package normalize

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// category is the detected payload shape of a field operation.
type category int

const (
	categoryGeneric  category = iota
	categoryCrop              // varieties list (seeding, harvest)
	categoryResource          // resources list with product, rate and totals
	categoryTillage           // tillageProducts list
)

func (c category) String() string {
	switch c {
	case categoryCrop:
		return "crop"
	case categoryResource:
		return "resource"
	case categoryTillage:
		return "tillage"
	}
	return "generic"
}

// Vendor payloads are loosely typed: a key that usually holds a string can
// carry a number, and nested objects are sometimes plain strings. Every
// type below decodes what it understands and leaves the rest zero, so only
// a record that is not a JSON object fails to decode.

// envelope holds the keys shared by every vendor shape. The variant lists
// stay undecoded until the category is known.
type envelope struct {
	ID                 text            `json:"id"`
	FieldOperationType text            `json:"fieldOperationType"`
	StartDate          text            `json:"startDate"`
	EndDate            text            `json:"endDate"`
	CropName           text            `json:"cropName"`
	Notes              text            `json:"notes"`
	Area               *measurement    `json:"area"`
	FieldOperation     *secondaryShape `json:"fieldOperation"`
	Machines           json.RawMessage `json:"machines"`

	Varieties       json.RawMessage `json:"varieties"`
	Resources       json.RawMessage `json:"resources"`
	TillageProducts json.RawMessage `json:"tillageProducts"`
}

// text accepts a JSON string or the literal text of a JSON number. Any
// other value decodes to "".
type text string

func (s *text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}
	switch c := b[0]; {
	case c == '"':
		var v string
		if json.Unmarshal(b, &v) == nil {
			*s = text(v)
		}
	case c == '-' || (c >= '0' && c <= '9'):
		*s = text(b)
	}
	return nil
}

func (s text) trimmed() string { return strings.TrimSpace(string(s)) }

// secondaryShape is the alternate vendor layout that nests the dates under
// a "fieldOperation" key.
type secondaryShape struct {
	StartDate text `json:"startDate"`
	EndDate   text `json:"endDate"`
}

func (s *secondaryShape) UnmarshalJSON(b []byte) error {
	type plain secondaryShape
	var p plain
	if decodeObject(b, &p) {
		*s = secondaryShape(p)
	}
	return nil
}

type namedItem struct {
	Name text `json:"name"`
}

// measurement is the vendor {value, valueAsDouble, unit} object. present is
// false when the key held something other than an object.
type measurement struct {
	Value         flexFloat `json:"value"`
	ValueAsDouble flexFloat `json:"valueAsDouble"`
	Unit          text      `json:"unit"`

	present bool
}

func (m *measurement) UnmarshalJSON(b []byte) error {
	type plain measurement
	var p plain
	if decodeObject(b, &p) {
		*m = measurement(p)
		m.present = true
	}
	return nil
}

// number prefers valueAsDouble over value.
func (m *measurement) number() *float64 {
	if m == nil {
		return nil
	}
	if m.ValueAsDouble.ok {
		v := m.ValueAsDouble.v
		return &v
	}
	if m.Value.ok {
		v := m.Value.v
		return &v
	}
	return nil
}

// flexFloat accepts JSON numbers and numeric strings. Anything else,
// including NaN and infinities, leaves ok false.
type flexFloat struct {
	v  float64
	ok bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	s := string(b)
	if b[0] == '"' {
		if json.Unmarshal(b, &s) != nil {
			return nil
		}
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	*f = flexFloat{v: v, ok: true}
	return nil
}

type variety struct {
	Name        text `json:"name"`
	ProductType text `json:"productType"`
}

type product struct {
	Name        text `json:"name"`
	ProductType text `json:"productType"`
}

func (p *product) UnmarshalJSON(b []byte) error {
	type plain product
	var v plain
	if decodeObject(b, &v) {
		*p = product(v)
	}
	return nil
}

type resource struct {
	Product       product      `json:"product"`
	Rate          *measurement `json:"rate"`
	TotalMaterial *measurement `json:"totalMaterial"`
}

type tillageProduct struct {
	TillageType text `json:"tillageType"`
}

// detect picks the variant from which lists are populated. Varieties win
// over resources, resources over tillage products.
func detect(env *envelope) category {
	switch {
	case nonEmptyList(env.Varieties):
		return categoryCrop
	case nonEmptyList(env.Resources):
		return categoryResource
	case nonEmptyList(env.TillageProducts), env.FieldOperationType == "tillage":
		return categoryTillage
	}
	return categoryGeneric
}

func nonEmptyList(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '[' {
		return false
	}
	return len(bytes.TrimSpace(raw[1:len(raw)-1])) > 0
}

// objectsOf decodes the object elements of a JSON list. Elements that are
// not objects are dropped; a missing or non-list value yields nil.
func objectsOf[T any](raw json.RawMessage) []T {
	var items []json.RawMessage
	if json.Unmarshal(raw, &items) != nil {
		return nil
	}
	out := make([]T, 0, len(items))
	for _, it := range items {
		var v T
		if decodeObject(it, &v) {
			out = append(out, v)
		}
	}
	return out
}

// decodeObject unmarshals b into dst when b is a JSON object and reports
// whether it did.
func decodeObject(b []byte, dst any) bool {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || b[0] != '{' {
		return false
	}
	return json.Unmarshal(b, dst) == nil
}
