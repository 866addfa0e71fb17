package file

import "errors"

var (
	ErrNilFileHeader = errors.New("file header is nil")
	ErrEmptyFile     = errors.New("file is empty")

	ErrFileTooLarge       = errors.New("file size exceeds maximum allowed size")
	ErrMIMETypeNotAllowed = errors.New("MIME type is not allowed")

	ErrFailedToOpenFile = errors.New("failed to open file")
	ErrFailedToReadFile = errors.New("failed to read file")
)
