package bildset

import "fmt"

// ArchiveError indicates a malformed or unreadable input archive.
type ArchiveError struct {
	Err error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("archive: %v", e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

// EmptyDatasetError indicates an upload that contained no images.
type EmptyDatasetError struct{}

func (e *EmptyDatasetError) Error() string {
	return "no images found in dataset"
}

// StorageError indicates a filesystem write failure while persisting a run.
type StorageError struct {
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Path, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RenderError indicates an image synthesis or encoding failure.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render: %v", e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
