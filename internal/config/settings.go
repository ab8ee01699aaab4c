package config

import (
	"net/url"
	"regexp"
	"strings"

	"vaultclip/internal/apperrors"
)

// Settings is the per-operation snapshot of the vault settings. It is passed
// by value and never re-read while an operation runs.
type Settings struct {
	APIURL          string `mapstructure:"api_url" json:"apiUrl"`
	APIKey          string `mapstructure:"api_key" json:"apiKey"`
	TargetFolder    string `mapstructure:"target_folder" json:"targetFolder"`
	IncludeMetadata bool   `mapstructure:"include_metadata" json:"includeMetadata"`
	LocalizeImages  bool   `mapstructure:"localize_images" json:"localizeImages"`
}

// DefaultSettings mirrors the values written on first install.
func DefaultSettings() Settings {
	return Settings{
		APIURL:          DefaultAPIURL,
		TargetFolder:    DefaultTargetFolder,
		IncludeMetadata: true,
		LocalizeImages:  true,
	}
}

var folderPattern = regexp.MustCompile(`^[\w\-\s\x{4e00}-\x{9fa5}/]+$`)

// Normalize trims whitespace and trailing slashes and fills an empty API URL.
func (s Settings) Normalize() Settings {
	s.APIURL = strings.TrimRight(strings.TrimSpace(s.APIURL), "/")
	if s.APIURL == "" {
		s.APIURL = DefaultAPIURL
	}
	s.APIKey = strings.TrimSpace(s.APIKey)
	s.TargetFolder = strings.Trim(strings.TrimSpace(s.TargetFolder), "/")
	return s
}

// Validate checks that the API URL is http(s) and the folder is a safe
// relative path.
func (s Settings) Validate() error {
	if !IsValidURL(s.APIURL) {
		return apperrors.New(apperrors.KindInvalidInput, apperrors.MsgInvalidURL)
	}
	if !IsValidFolderPath(s.TargetFolder) {
		return apperrors.Newf(apperrors.KindInvalidInput, "Invalid target folder: %q", s.TargetFolder)
	}
	return nil
}

// AttachmentsFolder is where localized images are written.
func (s Settings) AttachmentsFolder() string {
	if s.TargetFolder == "" {
		return AttachmentsDir
	}
	return s.TargetFolder + "/" + AttachmentsDir
}

// AttachmentsDir is the attachments directory name relative to the note.
const AttachmentsDir = "attachments"

func IsValidURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// IsValidFolderPath accepts an empty path (vault root).
func IsValidFolderPath(path string) bool {
	if path == "" {
		return true
	}
	return folderPattern.MatchString(path) && !strings.Contains(path, "..")
}
