package meshprep

import "github.com/pkg/errors"

// Preparation errors. Callers compare with errors.Is; returned errors carry
// context wrapped around these values.
var (
	ErrNotPreparing    = errors.New("mesh is not in preparing state")
	ErrNotPrepared     = errors.New("mesh is not in prepared state")
	ErrInvalidIndex    = errors.New("vertex index out of range")
	ErrInvalidFormat   = errors.New("invalid vertex format")
	ErrMissingPosition = errors.New("vertex format has no 3-component position")
	ErrPaletteCapacity = errors.New("bone set exceeds palette capacity")
	ErrInvalidSkin     = errors.New("invalid skin bind data")
)
