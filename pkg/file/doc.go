// Package file validates and reads multipart uploads.
//
// MIME types are detected from file content with http.DetectContentType, so a
// renamed file cannot pass as an image.
//
//	data, err := file.ReadImage(fh, 10<<20, file.ImageJPEG, file.ImagePNG)
package file
