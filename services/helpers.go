package services

import "fmt"

// extensionForContentType ограничивает загрузки картинками, которые
// умеет отдавать фронтенд.
func extensionForContentType(contentType string) (string, error) {
	switch contentType {
	case "image/png":
		return ".png", nil
	case "image/jpeg":
		return ".jpg", nil
	case "image/webp":
		return ".webp", nil
	case "image/svg+xml":
		return ".svg", nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedLogoFormat, contentType)
	}
}
