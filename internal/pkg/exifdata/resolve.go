package exifdata

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Fields is a normalized view of decoded EXIF output. Keys are the named
// EXIF fields the parser exposes; some decoders only expose raw numeric tag
// IDs, which appear here as their decimal string ("2" for GPSLatitude).
// Values are strings as emitted by the parser, or float64 when the parser
// already normalized them.
type Fields map[string]interface{}

// Raw numeric tag IDs used by the fallback strategies.
const (
	tagGPSLatitudeRef  = "1"
	tagGPSLatitude     = "2"
	tagGPSLongitudeRef = "3"
	tagGPSLongitude    = "4"
	tagMake            = "271"
	tagModel           = "272"
	tagLensModel       = "42036"
)

// gpsStrategy resolves one candidate coordinate pair. Strategies are pure
// and tried in order; the first success wins.
type gpsStrategy func(Fields) (lat, lng float64, ok bool)

var gpsStrategies = []gpsStrategy{
	gpsFromDecimal,
	gpsFromNamedTags,
	gpsFromNumericTags,
}

// resolveGPS returns a coordinate pair only when both values resolve to
// finite numbers; a partial pair is never reported.
func resolveGPS(f Fields) (*float64, *float64) {
	for _, strategy := range gpsStrategies {
		lat, lng, ok := strategy(f)
		if !ok || !finite(lat) || !finite(lng) {
			continue
		}
		return &lat, &lng
	}
	return nil, nil
}

// gpsFromDecimal uses latitude/longitude fields the parser already converted
// from degree/minute/second form.
func gpsFromDecimal(f Fields) (float64, float64, bool) {
	lat, ok1 := f.number("latitude")
	lng, ok2 := f.number("longitude")
	return lat, lng, ok1 && ok2
}

// gpsFromNamedTags combines the raw GPS fields with their hemisphere
// reference fields.
func gpsFromNamedTags(f Fields) (float64, float64, bool) {
	return coordPair(f, "GPSLatitude", "GPSLatitudeRef", "GPSLongitude", "GPSLongitudeRef")
}

// gpsFromNumericTags reads the same values under raw numeric tag IDs.
func gpsFromNumericTags(f Fields) (float64, float64, bool) {
	return coordPair(f, tagGPSLatitude, tagGPSLatitudeRef, tagGPSLongitude, tagGPSLongitudeRef)
}

func coordPair(f Fields, latKey, latRefKey, lngKey, lngRefKey string) (float64, float64, bool) {
	lat, ok1 := f.coordinate(latKey)
	lng, ok2 := f.coordinate(lngKey)
	if !ok1 || !ok2 {
		return 0, 0, false
	}
	if isHemisphere(f.text(latRefKey), "S") {
		lat = -lat
	}
	if isHemisphere(f.text(lngRefKey), "W") {
		lng = -lng
	}
	return lat, lng, true
}

func isHemisphere(ref, letter string) bool {
	ref = strings.ToUpper(strings.TrimSpace(ref))
	return strings.HasPrefix(ref, letter)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Timestamp candidates, original capture time first.
var timestampKeys = []string{
	"DateTimeOriginal",
	"DateTime",
	"CreateDate",
	"DateTimeDigitized",
}

var timestampLayouts = []string{
	"2006:01:02 15:04:05",
	time.RFC3339,
	"2006-01-02 15:04:05",
}

// resolveTimestamp walks the candidate fields in order and serializes the
// first parseable value as ISO-8601.
func resolveTimestamp(f Fields) string {
	for _, key := range timestampKeys {
		raw := f.text(key)
		if raw == "" {
			continue
		}
		for _, layout := range timestampLayouts {
			if t, err := time.ParseInLocation(layout, raw, time.Local); err == nil {
				return t.Format(time.RFC3339)
			}
		}
	}
	return ""
}

// resolveCamera joins non-empty make and model with a single space. Named
// keys are preferred over raw numeric tags.
func resolveCamera(f Fields) string {
	maker := f.textAny("Make", tagMake)
	model := f.textAny("Model", tagModel)
	switch {
	case maker != "" && model != "":
		return maker + " " + model
	case maker != "":
		return maker
	default:
		return model
	}
}

func resolveLens(f Fields) string {
	return f.textAny("LensModel", tagLensModel)
}

// text returns the trimmed string form of a field, or "".
func (f Fields) text(key string) string {
	switch v := f[key].(type) {
	case string:
		return strings.TrimSpace(strings.Trim(v, `"`))
	default:
		return ""
	}
}

func (f Fields) textAny(keys ...string) string {
	for _, key := range keys {
		if v := f.text(key); v != "" {
			return v
		}
	}
	return ""
}

// number reads a plain decimal value; it does not accept DMS forms.
func (f Fields) number(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		val, err := strconv.ParseFloat(strings.TrimSpace(strings.Trim(v, `"`)), 64)
		return val, err == nil
	default:
		return 0, false
	}
}

// coordinate reads a GPS value in any of the forms parsers emit: a decimal
// number, a rational ("67/2") or a degree/minute/second sequence
// ("33/1,30/1,0/1").
func (f Fields) coordinate(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case string:
		return parseCoordinate(v)
	default:
		return 0, false
	}
}

func parseCoordinate(raw string) (float64, bool) {
	raw = strings.Trim(strings.TrimSpace(raw), `"[]`)
	if raw == "" {
		return 0, false
	}
	if val, err := strconv.ParseFloat(raw, 64); err == nil {
		return val, true
	}

	// Degree/minute/second sequence: each part a rational or decimal,
	// weighted 1, 1/60, 1/3600.
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' '
	})
	if len(parts) == 0 || len(parts) > 3 {
		return 0, false
	}
	divisors := []float64{1, 60, 3600}
	total := 0.0
	for i, part := range parts {
		val, ok := parseRational(part)
		if !ok {
			return 0, false
		}
		total += val / divisors[i]
	}
	return total, true
}

func parseRational(raw string) (float64, bool) {
	raw = strings.Trim(strings.TrimSpace(raw), `"`)
	if num, den, found := strings.Cut(raw, "/"); found {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}
	val, err := strconv.ParseFloat(raw, 64)
	return val, err == nil
}
