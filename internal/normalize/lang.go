package normalize

import (
	"errors"
	"fmt"

	"github.com/abadojack/whatlanggo"
)

var ErrUndetected = errors.New("language not detected")

// Whatlang detects languages with whatlanggo. A result must score above
// MinConfidence; one at or below it counts as undetected.
type Whatlang struct {
	MinConfidence float64
}

func (w Whatlang) Detect(text string) (string, error) {
	info := whatlanggo.Detect(text)
	if info.Lang < 0 || info.Confidence <= 0 {
		return "", ErrUndetected
	}
	code := info.Lang.Iso6391()
	if code == "" {
		return "", ErrUndetected
	}
	if info.Confidence <= w.MinConfidence {
		return "", fmt.Errorf("%w: %s at confidence %.2f", ErrUndetected, code, info.Confidence)
	}
	return code, nil
}
