package domain

// ImageOutcome is the terminal result of acquiring one ImageRef.
// LocalPath and RelativePath are set iff Success; Error is set iff !Success.
type ImageOutcome struct {
	OriginalURL  string `json:"originalSrc"`
	Success      bool   `json:"success"`
	LocalPath    string `json:"localPath,omitempty"`
	RelativePath string `json:"relativePath,omitempty"`
	Error        string `json:"error,omitempty"`
}

func Succeeded(originalURL, localPath, relativePath string) ImageOutcome {
	return ImageOutcome{
		OriginalURL:  originalURL,
		Success:      true,
		LocalPath:    localPath,
		RelativePath: relativePath,
	}
}

func Failed(originalURL, message string) ImageOutcome {
	if message == "" {
		message = "unknown error"
	}
	return ImageOutcome{OriginalURL: originalURL, Error: message}
}

// CountOutcomes returns the number of successful and failed outcomes.
func CountOutcomes(outcomes []ImageOutcome) (succeeded, failed int) {
	for _, o := range outcomes {
		if o.Success {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
