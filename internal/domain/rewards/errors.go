package rewards

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	ErrLoadTable    = errors.New("load rule table failed")
	ErrParseTable   = errors.New("parse rule table failed")
	ErrInvalidTable = errors.New("invalid rule table")
)
