package cli

import (
	"errors"

	"github.com/ncruces/zenity"
)

// ErrPickCanceled is returned when the user closes the file dialog.
var ErrPickCanceled = errors.New("no image selected")

// imagePatterns are the extensions offered by the file dialog.
var imagePatterns = []string{"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp", "*.heic", "*.heif", "*.bmp", "*.tiff"}

// PickImage opens the native file dialog filtered to images.
func PickImage() (string, error) {
	path, err := zenity.SelectFile(
		zenity.Title("Select an image to recompose"),
		zenity.FileFilters{
			{Name: "Images", Patterns: imagePatterns},
		},
	)
	if err != nil {
		if errors.Is(err, zenity.ErrCanceled) {
			return "", ErrPickCanceled
		}
		return "", err
	}
	return path, nil
}
