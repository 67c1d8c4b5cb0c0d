package tabular

import "errors"

// Parse error codes surfaced to the HTTP layer.
const (
	ErrCodeParseUnknown     = "ERR_PARSE_UNKNOWN"
	ErrCodeParseEmptyFile   = "ERR_PARSE_EMPTY_FILE"
	ErrCodeParseEncoding    = "ERR_PARSE_INVALID_ENCODING"
	ErrCodeParseHeader      = "ERR_PARSE_MISSING_HEADER"
	ErrCodeParseMalformed   = "ERR_PARSE_MALFORMED"
	ErrCodeParseUnsupported = "ERR_PARSE_UNSUPPORTED_KIND"
)

// Common parse errors
var (
	// ErrEmptyFile is returned when the file has no content
	ErrEmptyFile = errors.New("file is empty")

	// ErrInvalidEncoding is returned when a text file is not valid UTF-8
	ErrInvalidEncoding = errors.New("invalid file encoding, expected UTF-8")

	// ErrMissingHeader is returned when the file has no header row
	ErrMissingHeader = errors.New("file missing header row")

	// ErrNoDataRows is returned when the file has headers but no data
	ErrNoDataRows = errors.New("file contains no data rows")

	// ErrUnsupportedKind is returned for file kinds the parser cannot decode
	ErrUnsupportedKind = errors.New("unsupported file kind")

	// ErrMalformed is returned when the file structure cannot be decoded
	ErrMalformed = errors.New("malformed file")
)
