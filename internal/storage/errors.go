package storage

import "errors"

var (
	ErrBlobNotFound    = errors.New("blob not found")
	ErrNotOwner        = errors.New("blob belongs to another user")
	ErrFileTooLarge    = errors.New("file exceeds maximum allowed size")
	ErrInvalidMimeType = errors.New("file type is not allowed")
	ErrEmptyFile       = errors.New("file is empty")
)
