// Package normalize maps vendor field-operation payloads onto the canonical
// analytics schema. Everything here is pure: no I/O, no shared state, and
// the result depends only on the input and the supplied clock value.
package normalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
	"gorm.io/datatypes"

	"github.com/agricapture/fieldsync/internal/domain"
)

// DefaultAreaUnit is used when an area object carries no unit.
const DefaultAreaUnit = "ha"

// ErrNotObject is returned for records that are not JSON objects.
var ErrNotObject = errors.New("operation payload is not a JSON object")

// RecordError reports a single record that could not be normalized. It is
// always handled by the batch loop and never aborts a sync.
type RecordError struct {
	Index       int
	OperationID string
	Err         error
}

func (e *RecordError) Error() string {
	if e.OperationID != "" {
		return fmt.Sprintf("normalize operation %s (record %d): %v", e.OperationID, e.Index, e.Err)
	}
	return fmt.Sprintf("normalize record %d: %v", e.Index, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// typeMapping is matched case-sensitively on fieldOperationType.
var typeMapping = map[string]domain.OperationType{
	"seeding":     domain.OperationPlanting,
	"harvest":     domain.OperationHarvest,
	"tillage":     domain.OperationTillage,
	"application": domain.OperationFertilizer,
}

// CanonicalType maps a vendor operation type onto the canonical enum.
func CanonicalType(vendor string) domain.OperationType {
	if t, ok := typeMapping[vendor]; ok {
		return t
	}
	return domain.OperationOther
}

// Target identifies the field and organization a batch belongs to.
type Target struct {
	FieldID   string
	FieldName string
	OrgID     string
	OrgName   string
}

// Meta is the identifying information of a raw record.
type Meta struct {
	OperationID string
	VendorType  string
	EventStart  *time.Time
	EventEnd    *time.Time
}

// Inspect decodes the identifying fields of raw. OperationID is the vendor
// id when present, otherwise "<fieldID>:<date>" built from the first
// populated date value. Any JSON object is accepted; keys of an unexpected
// type are treated as absent.
func Inspect(raw []byte, fieldID string) (Meta, error) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return Meta{}, err
	}
	return metaOf(env, raw, fieldID), nil
}

func metaOf(env *envelope, raw []byte, fieldID string) Meta {
	m := Meta{
		OperationID: env.ID.trimmed(),
		VendorType:  string(env.FieldOperationType),
		EventStart:  parseTimePtr(env.StartDate.trimmed()),
		EventEnd:    parseTimePtr(env.EndDate.trimmed()),
	}
	if m.OperationID == "" {
		if d := chosenDate(env); d != "" {
			m.OperationID = fieldID + ":" + d
		} else {
			// No id and no date: fall back to a content hash so replays
			// of the same payload still collapse onto one row.
			sum := sha256.Sum256(raw)
			m.OperationID = fieldID + ":" + hex.EncodeToString(sum[:8])
		}
	}
	return m
}

// Normalize converts one raw vendor record into a NormalizedOperation. The
// returned row has no surrogate ID; the caller assigns one on insert.
func Normalize(raw []byte, fieldID, fieldName, orgID, orgName string, now time.Time) (domain.NormalizedOperation, error) {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return domain.NormalizedOperation{}, err
	}
	meta := metaOf(env, raw, fieldID)

	op := domain.NormalizedOperation{
		OperationID:   meta.OperationID,
		FieldID:       fieldID,
		FieldName:     fieldName,
		OrgID:         orgID,
		OrgName:       orgName,
		OperationType: CanonicalType(string(env.FieldOperationType)),
		OperationDate: operationDate(env, now),
		CropName:      clean(string(env.CropName)),
		Notes:         clean(string(env.Notes)),
	}

	if machines := objectsOf[namedItem](env.Machines); len(machines) > 0 {
		op.EquipmentName = clean(string(machines[0].Name))
	}
	if env.Area != nil && env.Area.present {
		op.Area = env.Area.number()
		unit := env.Area.Unit.trimmed()
		if unit == "" {
			unit = DefaultAreaUnit
		}
		op.AreaUnit = clean(unit)
	}

	// Lists whose elements are not objects leave the product columns empty.
	switch detect(env) {
	case categoryCrop:
		if vs := objectsOf[variety](env.Varieties); len(vs) > 0 {
			op.ProductName = clean(string(vs[0].Name))
			op.ProductCategory = clean(string(vs[0].ProductType))
			if op.CropName == nil {
				op.CropName = clean(string(vs[0].Name))
			}
		}

	case categoryResource:
		if rs := objectsOf[resource](env.Resources); len(rs) > 0 {
			first := rs[0]
			op.ProductName = clean(string(first.Product.Name))
			op.ProductCategory = clean(string(first.Product.ProductType))
			if first.Rate != nil && first.Rate.present {
				op.RateValue = first.Rate.number()
				op.RateUnit = clean(string(first.Rate.Unit))
			}
			if first.TotalMaterial != nil && first.TotalMaterial.present {
				op.TotalAmount = first.TotalMaterial.number()
				op.TotalAmountUnit = clean(string(first.TotalMaterial.Unit))
			}
		}

	case categoryTillage:
		if ts := objectsOf[tillageProduct](env.TillageProducts); len(ts) > 0 {
			op.ProductCategory = clean(string(ts[0].TillageType))
		}
	}

	return op, nil
}

// Batch is the outcome of NormalizeBatch. Raw holds one row per decodable
// record; Normalized may be shorter than Raw when a record failed.
type Batch struct {
	Raw        []domain.RawOperation
	Normalized []domain.NormalizedOperation
	Failures   []*RecordError
}

// NormalizeBatch normalizes every record, collecting per-record failures
// instead of stopping. farmerID is stamped on the raw rows.
func NormalizeBatch(records []json.RawMessage, t Target, farmerID string, now time.Time) Batch {
	var b Batch
	seen := make(map[string]int, len(records))
	for i, rec := range records {
		meta, err := Inspect(rec, t.FieldID)
		if err != nil {
			b.Failures = append(b.Failures, &RecordError{Index: i, Err: err})
			continue
		}
		raw := domain.RawOperation{
			OperationID:   meta.OperationID,
			FieldID:       t.FieldID,
			OrgID:         t.OrgID,
			FarmerID:      farmerID,
			OperationType: meta.VendorType,
			RawPayload:    datatypes.JSON(bytes.Clone(rec)),
			EventStart:    meta.EventStart,
			EventEnd:      meta.EventEnd,
		}
		// The same operation listed twice in one response keeps the last copy.
		if j, dup := seen[meta.OperationID]; dup {
			b.Raw[j] = raw
		} else {
			seen[meta.OperationID] = len(b.Raw)
			b.Raw = append(b.Raw, raw)
		}

		op, err := Normalize(rec, t.FieldID, t.FieldName, t.OrgID, t.OrgName, now)
		if err != nil {
			b.Failures = append(b.Failures, &RecordError{Index: i, OperationID: meta.OperationID, Err: err})
			continue
		}
		b.Normalized = append(b.Normalized, op)
	}
	return b
}

func decodeEnvelope(raw []byte) (*envelope, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotObject
	}
	var env envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// chosenDate is the first populated of startDate, endDate and the
// secondary shape's dates. A numeric date is returned as its literal text.
func chosenDate(env *envelope) string {
	candidates := []text{env.StartDate, env.EndDate}
	if env.FieldOperation != nil {
		candidates = append(candidates, env.FieldOperation.StartDate, env.FieldOperation.EndDate)
	}
	for _, c := range candidates {
		if s := c.trimmed(); s != "" {
			return s
		}
	}
	return ""
}

// operationDate parses the chosen date and substitutes now when it is
// absent, numeric or not ISO-8601.
func operationDate(env *envelope, now time.Time) time.Time {
	if t, ok := parseTime(chosenDate(env)); ok {
		return t
	}
	return now.UTC()
}

// isoLayouts are tried in order; layouts without an offset are read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func parseTimePtr(s string) *time.Time {
	if t, ok := parseTime(s); ok {
		return &t
	}
	return nil
}

// clean trims and NFC-normalizes s, returning nil for empty strings.
func clean(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = norm.NFC.String(s)
	return &s
}
