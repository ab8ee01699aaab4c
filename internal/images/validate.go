package images

import (
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"vaultclip/internal/apperrors"
)

// MaxImageBytes is the largest image that will be written to the vault.
const MaxImageBytes = 10 * 1024 * 1024

const defaultExtension = ".png"

var allowedTypes = map[string]string{
	"image/jpeg":    ".jpg",
	"image/png":     ".png",
	"image/gif":     ".gif",
	"image/webp":    ".webp",
	"image/svg+xml": ".svg",
}

// NormalizeMIME strips parameters and lower-cases a content type.
func NormalizeMIME(contentType string) string {
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt, _, _ = strings.Cut(contentType, ";")
	}
	return strings.ToLower(strings.TrimSpace(mt))
}

// ExtensionForMIME maps an image type to its file extension, ".png" when
// the type is unknown.
func ExtensionForMIME(contentType string) string {
	if ext, ok := allowedTypes[NormalizeMIME(contentType)]; ok {
		return ext
	}
	return defaultExtension
}

// IsAllowed reports whether contentType is an image type that may be stored.
func IsAllowed(contentType string) bool {
	_, ok := allowedTypes[NormalizeMIME(contentType)]
	return ok
}

// Sniff detects the content type of data from its leading bytes.
func Sniff(data []byte) string {
	return NormalizeMIME(mimetype.Detect(data).String())
}

// Validate checks type and size before an image is uploaded.
func Validate(data []byte, contentType string) error {
	if !IsAllowed(contentType) {
		return apperrors.Newf(apperrors.KindValidationFailed, "Unsupported image type: %s", NormalizeMIME(contentType))
	}
	if len(data) > MaxImageBytes {
		return apperrors.Newf(apperrors.KindValidationFailed, "Image too large: %dMB", (len(data)+512*1024)/(1024*1024))
	}
	return nil
}

// EncodeDataURL renders data as a base64 data URL.
func EncodeDataURL(data []byte, contentType string) string {
	return "data:" + NormalizeMIME(contentType) + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL parses a base64 data URL. A missing media type is sniffed
// from the decoded bytes.
func DecodeDataURL(dataURL string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return nil, "", apperrors.New(apperrors.KindInvalidInput, "not a data URL")
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", apperrors.New(apperrors.KindInvalidInput, "malformed data URL")
	}
	mediaType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return nil, "", apperrors.New(apperrors.KindInvalidInput, "data URL is not base64 encoded")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", apperrors.Wrap(apperrors.KindInvalidInput, fmt.Sprintf("invalid base64 payload: %v", err), err)
	}
	contentType := NormalizeMIME(mediaType)
	if contentType == "" {
		contentType = Sniff(data)
	}
	return data, contentType, nil
}
