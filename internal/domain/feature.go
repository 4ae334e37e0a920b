package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Field names used by the pipeline's rules.
const (
	FieldUpdatedAt = "DATA_ATUALIZACAO"
	FieldFacility  = "CEG"
	FieldCapacity  = "POT_MW"
	FieldOperating = "OPERACAO"
	FieldHeight    = "ALT_TOTAL"
	FieldFarmName  = "NOME_EOL"

	ColumnLatitude  = "latitude"
	ColumnLongitude = "longitude"
	ColumnWKT       = "geometry_wkt"
)

// Attributes is a JSON object decoded with its key order preserved.
// Values are nil, bool, int64, float64 or string.
type Attributes struct {
	Keys   []string
	Values map[string]any
}

// Get returns the value stored under key.
func (a Attributes) Get(key string) (any, bool) {
	v, ok := a.Values[key]
	return v, ok
}

// Set appends key if it is new and stores v.
func (a *Attributes) Set(key string, v any) {
	if a.Values == nil {
		a.Values = make(map[string]any)
	}
	if _, ok := a.Values[key]; !ok {
		a.Keys = append(a.Keys, key)
	}
	a.Values[key] = v
}

func (a *Attributes) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decode attributes: %w", err)
	}
	if tok == nil {
		*a = Attributes{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decode attributes: expected object, got %v", tok)
	}

	out := Attributes{Values: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decode attributes: %w", err)
		}
		key, _ := tok.(string)

		var raw any
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode attribute %q: %w", key, err)
		}
		out.Set(key, normalizeJSONValue(raw))
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("decode attributes: %w", err)
	}

	*a = out
	return nil
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range a.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(a.Values[k])
		if err != nil {
			return nil, fmt.Errorf("encode attribute %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// normalizeJSONValue maps decoder output onto the cell types used by Table.
// Nested objects and arrays are kept as their JSON text.
func normalizeJSONValue(v any) any {
	switch x := v.(type) {
	case nil, bool, string:
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// Geometry is an ArcGIS point. Missing or non-numeric coordinates decode to nil.
type Geometry struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func (g *Geometry) UnmarshalJSON(data []byte) error {
	var raw struct {
		X any `json:"x"`
		Y any `json:"y"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode geometry: %w", err)
	}
	g.X, g.Y = nil, nil
	if x, ok := ToFloat(raw.X); ok {
		g.X = &x
	}
	if y, ok := ToFloat(raw.Y); ok {
		g.Y = &y
	}
	return nil
}

// Point returns longitude and latitude when both are present.
func (g *Geometry) Point() (lon, lat float64, ok bool) {
	if g == nil || g.X == nil || g.Y == nil {
		return 0, 0, false
	}
	return *g.X, *g.Y, true
}

// Feature is one remote record.
type Feature struct {
	Attributes Attributes `json:"attributes"`
	Geometry   *Geometry  `json:"geometry"`
}

// ServiceError is the error object ArcGIS embeds in HTTP 200 responses.
type ServiceError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("arcgis error %d: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
	}
	return fmt.Sprintf("arcgis error %d: %s", e.Code, e.Message)
}

// PagePayload is one page of query results. Raw holds the response bytes as
// received so they can be persisted verbatim.
type PagePayload struct {
	Features              []Feature     `json:"features"`
	Count                 *int64        `json:"count,omitempty"`
	ExceededTransferLimit bool          `json:"exceededTransferLimit,omitempty"`
	Error                 *ServiceError `json:"error,omitempty"`

	Raw []byte `json:"-"`
}

// DecodePage parses a payload leniently: a missing "features" key yields an
// empty page. Use ValidatePayload for strict shape checks.
func DecodePage(data []byte) (PagePayload, error) {
	var p PagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return PagePayload{}, fmt.Errorf("%w: decode page: %v", ErrProcessing, err)
	}
	p.Raw = data
	return p, nil
}

// ValidatePayload checks that a page response carries a "features" array and
// that its first feature has both "geometry" and "attributes".
func ValidatePayload(data []byte) error {
	var probe struct {
		Features *[]map[string]json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return fmt.Errorf("%w: response shape: %v", ErrValidation, err)
	}
	if probe.Features == nil {
		return fmt.Errorf("%w: response has no features field", ErrValidation)
	}
	features := *probe.Features
	if len(features) == 0 {
		return nil
	}
	if _, ok := features[0]["geometry"]; !ok {
		return fmt.Errorf("%w: features must contain geometry", ErrValidation)
	}
	if _, ok := features[0]["attributes"]; !ok {
		return fmt.Errorf("%w: features must contain attributes", ErrValidation)
	}
	return nil
}

// LatestUpdate returns the maximum DATA_ATUALIZACAO across features, ignoring
// missing or unparseable values. Returns 0 when none is usable.
func LatestUpdate(features []Feature) int64 {
	var latest int64
	for _, f := range features {
		v, ok := f.Attributes.Get(FieldUpdatedAt)
		if !ok {
			continue
		}
		ms, ok := ToInt64(v)
		if !ok {
			continue
		}
		if ms > latest {
			latest = ms
		}
	}
	return latest
}
