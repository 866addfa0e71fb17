package file

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"slices"
)

// Image MIME types as reported by http.DetectContentType.
const (
	ImageJPEG = "image/jpeg"
	ImagePNG  = "image/png"
	ImageWebP = "image/webp"
)

// GetMIMEType detects the MIME type from the first 512 bytes of the file.
func GetMIMEType(fh *multipart.FileHeader) (string, error) {
	if fh == nil {
		return "", ErrNilFileHeader
	}

	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrFailedToOpenFile, err)
	}
	defer func() { _ = f.Close() }()

	// 512 bytes is the maximum http.DetectContentType reads
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("%w: %v", ErrFailedToReadFile, err)
	}
	return http.DetectContentType(buf[:n]), nil
}

// ValidateSize checks the declared size against maxBytes. ReadAll enforces
// the limit on the actual content.
func ValidateSize(fh *multipart.FileHeader, maxBytes int64) error {
	if fh == nil {
		return ErrNilFileHeader
	}
	if fh.Size > maxBytes {
		return fmt.Errorf("file size %d bytes exceeds %d bytes limit: %w", fh.Size, maxBytes, ErrFileTooLarge)
	}
	return nil
}

// ValidateMIMEType checks the detected MIME type against allowedTypes.
// No types allows everything.
func ValidateMIMEType(fh *multipart.FileHeader, allowedTypes ...string) error {
	if fh == nil {
		return ErrNilFileHeader
	}
	if len(allowedTypes) == 0 {
		return nil
	}

	mimeType, err := GetMIMEType(fh)
	if err != nil {
		return err
	}
	if slices.Contains(allowedTypes, mimeType) {
		return nil
	}
	return fmt.Errorf("MIME type %s not in allowed types %v: %w", mimeType, allowedTypes, ErrMIMETypeNotAllowed)
}

// ReadAll reads at most maxBytes of the file. A larger file fails with
// ErrFileTooLarge and an empty one with ErrEmptyFile.
func ReadAll(fh *multipart.FileHeader, maxBytes int64) ([]byte, error) {
	if fh == nil {
		return nil, ErrNilFileHeader
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToOpenFile, err)
	}
	defer func() { _ = f.Close() }()

	data, err := io.ReadAll(io.LimitReader(f, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFailedToReadFile, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrFileTooLarge
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	return data, nil
}

// ReadImage validates size and content type, then reads the file.
func ReadImage(fh *multipart.FileHeader, maxBytes int64, allowedTypes ...string) ([]byte, error) {
	if err := ValidateSize(fh, maxBytes); err != nil {
		return nil, err
	}
	if fh.Size == 0 {
		return nil, ErrEmptyFile
	}
	if err := ValidateMIMEType(fh, allowedTypes...); err != nil {
		return nil, err
	}
	return ReadAll(fh, maxBytes)
}
