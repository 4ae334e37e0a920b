package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributes_KeepKeyOrder(t *testing.T) {
	in := `{"features":[{"attributes":{"POT_MW":2.5,"CEG":"EOL.1","ALT_TOTAL":120,"OPERACAO":null,"EXTRA":{"a":1}},"geometry":{"x":-36.5,"y":-5.2}}]}`

	page, err := DecodePage([]byte(in))
	require.NoError(t, err)
	require.Len(t, page.Features, 1)

	a := page.Features[0].Attributes
	assert.Equal(t, []string{"POT_MW", "CEG", "ALT_TOTAL", "OPERACAO", "EXTRA"}, a.Keys)
	assert.Equal(t, 2.5, a.Values["POT_MW"])
	assert.Equal(t, int64(120), a.Values["ALT_TOTAL"])
	assert.Nil(t, a.Values["OPERACAO"])
	assert.Equal(t, `{"a":1}`, a.Values["EXTRA"])

	out, err := a.MarshalJSON()
	require.NoError(t, err)
	assert.Equal(t, `{"POT_MW":2.5,"CEG":"EOL.1","ALT_TOTAL":120,"OPERACAO":null,"EXTRA":"{\"a\":1}"}`, string(out))
}

func TestAttributes_SetReplacesInPlace(t *testing.T) {
	var a Attributes
	a.Set("A", 1)
	a.Set("B", 2)
	a.Set("A", 3)

	assert.Equal(t, []string{"A", "B"}, a.Keys)
	v, ok := a.Get("A")
	assert.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestGeometry_NonNumericCoordinates(t *testing.T) {
	page, err := DecodePage([]byte(`{"features":[
		{"attributes":{},"geometry":{"x":"NaN","y":-5}},
		{"attributes":{},"geometry":null},
		{"attributes":{},"geometry":{"x":"-36.5","y":"-5.2"}}
	]}`))
	require.NoError(t, err)

	_, _, ok := page.Features[0].Geometry.Point()
	assert.False(t, ok)
	_, _, ok = page.Features[1].Geometry.Point()
	assert.False(t, ok)
	lon, lat, ok := page.Features[2].Geometry.Point()
	assert.True(t, ok)
	assert.Equal(t, -36.5, lon)
	assert.Equal(t, -5.2, lat)
}

func TestDecodePage(t *testing.T) {
	page, err := DecodePage([]byte(`{"count":42}`))
	require.NoError(t, err)
	assert.Empty(t, page.Features)
	require.NotNil(t, page.Count)
	assert.Equal(t, int64(42), *page.Count)

	_, err = DecodePage([]byte(`{"features":[`))
	require.ErrorIs(t, err, ErrProcessing)
}

func TestValidatePayload(t *testing.T) {
	tests := []struct {
		name string
		body string
		ok   bool
	}{
		{"valid", `{"features":[{"attributes":{},"geometry":{"x":1,"y":2}}]}`, true},
		{"empty features", `{"features":[]}`, true},
		{"missing features", `{"fields":[]}`, false},
		{"missing geometry", `{"features":[{"attributes":{}}]}`, false},
		{"missing attributes", `{"features":[{"geometry":null}]}`, false},
		{"not an object", `[1,2]`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload([]byte(tt.body))
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestServiceError(t *testing.T) {
	err := &ServiceError{Code: 400, Message: "Invalid query", Details: []string{"bad where", "bad offset"}}
	assert.Equal(t, "arcgis error 400: Invalid query (bad where; bad offset)", err.Error())
	assert.Equal(t, "arcgis error 500: boom", (&ServiceError{Code: 500, Message: "boom"}).Error())
}

func TestLatestUpdate(t *testing.T) {
	page, err := DecodePage([]byte(`{"features":[
		{"attributes":{"DATA_ATUALIZACAO":1714521600000}},
		{"attributes":{"DATA_ATUALIZACAO":"garbage"}},
		{"attributes":{"DATA_ATUALIZACAO":null}},
		{"attributes":{}},
		{"attributes":{"DATA_ATUALIZACAO":1714608000000}}
	]}`))
	require.NoError(t, err)

	assert.Equal(t, int64(1714608000000), LatestUpdate(page.Features))
	assert.Zero(t, LatestUpdate(page.Features[1:4]))
	assert.Zero(t, LatestUpdate(nil))
}
