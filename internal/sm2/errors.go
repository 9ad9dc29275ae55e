package sm2

import (
	"errors"
	"fmt"
)

// ErrInvalidRating is matched by every InvalidRatingError.
// Use errors.Is to check: errors.Is(err, sm2.ErrInvalidRating)
var ErrInvalidRating = errors.New("sm2: invalid rating")

// InvalidRatingError reports a quality outside [0, 5].
type InvalidRatingError struct {
	Quality int
}

func (e *InvalidRatingError) Error() string {
	return fmt.Sprintf("sm2: invalid rating %d: must be between 0 and 5", e.Quality)
}

func (e *InvalidRatingError) Is(target error) bool {
	return target == ErrInvalidRating
}
