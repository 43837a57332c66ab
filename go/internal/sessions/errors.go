package sessions

import "errors"

var (
	ErrInvalidName           = errors.New("name must not be empty")
	ErrDuplicateName         = errors.New("session name already exists")
	ErrDuplicateID           = errors.New("session id already exists")
	ErrSessionNotFound       = errors.New("session not found")
	ErrSessionFull           = errors.New("session is full (max 8 drivers)")
	ErrDuplicateDriverName   = errors.New("driver name already exists in session")
	ErrDriverNotFound        = errors.New("driver not found")
	ErrInvalidCarNumber      = errors.New("car number must be between 1 and 8")
	ErrCarNumberTaken        = errors.New("car number already taken")
	ErrNoCarNumbersAvailable = errors.New("no car numbers available")
)

// IsNotFound reports whether err refers to a missing session or driver.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrDriverNotFound)
}

// IsValidation reports whether err is a rejected input or conflict.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrInvalidName,
		ErrDuplicateName,
		ErrDuplicateID,
		ErrSessionFull,
		ErrDuplicateDriverName,
		ErrInvalidCarNumber,
		ErrCarNumberTaken,
		ErrNoCarNumbersAvailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
