package ifd

import "fmt"

// imageNames covers baseline TIFF and Exif sub-directory tags, which share
// one numbering space.
var imageNames = map[uint16]string{
	0x00FE: "NewSubfileType",
	0x0100: "ImageWidth",
	0x0101: "ImageLength",
	0x0102: "BitsPerSample",
	0x0103: "Compression",
	0x0106: "PhotometricInterpretation",
	0x010D: "DocumentName",
	0x010E: "ImageDescription",
	0x010F: "Make",
	0x0110: "Model",
	0x0112: "Orientation",
	0x0115: "SamplesPerPixel",
	0x011A: "XResolution",
	0x011B: "YResolution",
	0x011D: "PageName",
	0x0128: "ResolutionUnit",
	0x0131: "Software",
	0x0132: "DateTime",
	0x013B: "Artist",
	0x013C: "HostComputer",
	0x8298: "Copyright",
	0x829A: "ExposureTime",
	0x829D: "FNumber",
	0x8827: "ISOSpeedRatings",
	0x9000: "ExifVersion",
	0x9003: "DateTimeOriginal",
	0x9004: "DateTimeDigitized",
	0x9010: "OffsetTime",
	0x9011: "OffsetTimeOriginal",
	0x9012: "OffsetTimeDigitized",
	0x920A: "FocalLength",
	0x927C: "MakerNote",
	0x9286: "UserComment",
	0x9290: "SubSecTime",
	0x9291: "SubSecTimeOriginal",
	0x9292: "SubSecTimeDigitized",
	0xA002: "PixelXDimension",
	0xA003: "PixelYDimension",
	0xA420: "ImageUniqueID",
	0xA430: "CameraOwnerName",
	0xA431: "BodySerialNumber",
	0xA433: "LensMake",
	0xA434: "LensModel",
	0xA435: "LensSerialNumber",
}

var gpsNames = map[uint16]string{
	0x0000: "GPSVersionID",
	0x0001: "GPSLatitudeRef",
	0x0002: "GPSLatitude",
	0x0003: "GPSLongitudeRef",
	0x0004: "GPSLongitude",
	0x0005: "GPSAltitudeRef",
	0x0006: "GPSAltitude",
	0x0007: "GPSTimeStamp",
	0x0008: "GPSSatellites",
	0x0012: "GPSMapDatum",
	0x001B: "GPSProcessingMethod",
	0x001C: "GPSAreaInformation",
	0x001D: "GPSDateStamp",
}

var interopNames = map[uint16]string{
	0x0001: "InteroperabilityIndex",
	0x0002: "InteroperabilityVersion",
}

func namesFor(c Class) map[uint16]string {
	switch c {
	case ClassGPS:
		return gpsNames
	case ClassInterop:
		return interopNames
	}
	return imageNames
}

// Keyword returns the name of tag within class, or its hex form.
func Keyword(c Class, tag uint16) string {
	if name, ok := namesFor(c)[tag]; ok {
		return name
	}
	return fmt.Sprintf("0x%04X", tag)
}

// dateTimeTags hold "YYYY:MM:DD HH:MM:SS" timestamps.
var dateTimeTags = map[string]bool{
	"DateTime":          true,
	"DateTimeOriginal":  true,
	"DateTimeDigitized": true,
}
