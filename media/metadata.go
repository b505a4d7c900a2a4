package media

import (
	"fmt"
	"os"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
)

// ExifExtractor reads EXIF metadata with goexif. It implements
// MetadataExtractor.
type ExifExtractor struct{}

// NewExifExtractor returns the default EXIF metadata extractor.
func NewExifExtractor() *ExifExtractor {
	return &ExifExtractor{}
}

// helper to safely get and convert a rational tag (like Aperture, FocalLength)
func getRational(exifData *exif.Exif, tagName exif.FieldName) *float64 {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	// rational numbers are often stored as num/den
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		// sometimes stored as Int instead
		valInt, errInt := tag.Int(0)
		if errInt == nil {
			fVal := float64(valInt)
			return &fVal
		}
		return nil
	}
	val := float64(num) / float64(den)
	return &val
}

// helper to safely get and convert an integer tag (like ISO, Orientation)
func getInt(exifData *exif.Exif, tagName exif.FieldName) *int {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val, err := tag.Int(0)
	if err != nil {
		return nil
	}
	return &val
}

// helper to safely get a string tag, trimming null terminators
func getString(exifData *exif.Exif, tagName exif.FieldName) *string {
	tag, err := exifData.Get(tagName)
	if err != nil || tag == nil {
		return nil
	}
	val := strings.Trim(tag.String(), "\"\x00 ")
	if val == "" {
		return nil
	}
	return &val
}

// helper to get Shutter Speed specifically, formatting it nicely
func getShutterSpeed(exifData *exif.Exif) *string {
	tag, err := exifData.Get(exif.ExposureTime)
	if err != nil || tag == nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil
	}

	if num == 1 && den > 1 { // common case: 1/XXX
		s := fmt.Sprintf("1/%d", den)
		return &s
	}

	val := float64(num) / float64(den)
	if val >= 1.0 {
		s := fmt.Sprintf("%.1fs", val)
		return &s
	}
	s := fmt.Sprintf("%.4fs", val)
	return &s
}

// Extract reads the EXIF block of the file. A file without EXIF data is
// not an error: it yields an empty Metadata with all fields nil.
func (e *ExifExtractor) Extract(filePath string) (*Metadata, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("metadata: failed to open file %s: %w", filePath, err)
	}
	defer file.Close()

	meta := &Metadata{}

	exifData, err := exif.Decode(file)
	if err != nil || exifData == nil {
		// no EXIF block; nothing to fabricate
		return meta, nil
	}

	meta.CameraMake = getString(exifData, exif.Make)
	meta.CameraModel = getString(exifData, exif.Model)
	meta.LensMake = getString(exifData, exif.LensMake)
	meta.LensModel = getString(exifData, exif.LensModel)
	meta.ISO = getInt(exifData, exif.ISOSpeedRatings)
	meta.Aperture = getRational(exifData, exif.FNumber)
	meta.FocalLength = getRational(exifData, exif.FocalLength)
	meta.ShutterSpeed = getShutterSpeed(exifData)
	meta.Orientation = getInt(exifData, exif.Orientation)

	if dt, dtErr := exifData.DateTime(); dtErr == nil {
		ts := dt.Unix()
		meta.ShotAt = &ts
	}

	if lat, lon, gpsErr := exifData.LatLong(); gpsErr == nil {
		meta.GPSLatitude = &lat
		meta.GPSLongitude = &lon
	}

	return meta, nil
}
