// Package exifdata extracts capture time, GPS and camera metadata from
// image files. Extraction never fails the caller: a corrupt or EXIF-less
// file degrades to a nil bundle and the photo proceeds without metadata.
package exifdata

import (
	"io"
	"os"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/mknote"
	"github.com/rwcarlsen/goexif/tiff"
)

func init() {
	// Register Nikon and Canon maker notes
	exif.RegisterParsers(mknote.All...)
}

// Bundle is the optional result of metadata extraction. Every field may be
// absent; an entirely empty bundle means "no usable metadata" and is not an
// error. Latitude and longitude are WGS84 decimal degrees and are always
// both present or both absent.
type Bundle struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Timestamp string   `json:"timestamp,omitempty"`
	Camera    string   `json:"camera,omitempty"`
	Lens      string   `json:"lens,omitempty"`
}

// Location is a resolved coordinate pair.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Empty reports whether no field was resolved.
func (b *Bundle) Empty() bool {
	return b == nil || (b.Latitude == nil && b.Longitude == nil &&
		b.Timestamp == "" && b.Camera == "" && b.Lens == "")
}

// Location returns the coordinate pair, or nil when the bundle carries no
// complete pair.
func (b *Bundle) Location() *Location {
	if b == nil || b.Latitude == nil || b.Longitude == nil {
		return nil
	}
	return &Location{Latitude: *b.Latitude, Longitude: *b.Longitude}
}

// Extract decodes EXIF metadata from r and resolves a bundle. A decode
// failure (corrupt or unsupported container) returns nil.
func Extract(r io.Reader) *Bundle {
	x, err := exif.Decode(r)
	if err != nil {
		// Many images carry no EXIF data; this is not a critical error
		log.Warnf("[ExifData] No EXIF data found: %v", err)
		return nil
	}
	return Resolve(fieldsFromExif(x))
}

// ExtractFile extracts metadata from an image file on disk.
func ExtractFile(path string) *Bundle {
	f, err := os.Open(path)
	if err != nil {
		log.Warnf("[ExifData] Error opening image file %s: %v", path, err)
		return nil
	}
	defer f.Close()
	return Extract(f)
}

// Resolve runs the ordered fallback strategies over a decoded field view.
func Resolve(f Fields) *Bundle {
	b := &Bundle{}
	b.Latitude, b.Longitude = resolveGPS(f)
	b.Timestamp = resolveTimestamp(f)
	b.Camera = resolveCamera(f)
	b.Lens = resolveLens(f)
	return b
}

type fieldCollector struct {
	fields Fields
}

func (c *fieldCollector) Walk(name exif.FieldName, tag *tiff.Tag) error {
	c.fields[string(name)] = strings.Trim(tag.String(), `"`)
	return nil
}

func fieldsFromExif(x *exif.Exif) Fields {
	c := &fieldCollector{fields: Fields{}}
	_ = x.Walk(c)

	// goexif already converts degree/minute/second GPS values to decimal;
	// expose them as the pre-normalized strategy input
	if lat, lng, err := x.LatLong(); err == nil {
		c.fields["latitude"] = lat
		c.fields["longitude"] = lng
	}

	return c.fields
}
