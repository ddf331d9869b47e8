package fileutil

// Releaser frees a held file lock.
type Releaser interface {
	Release() error
}
