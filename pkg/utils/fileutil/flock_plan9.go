package fileutil

import (
	"os"
)

type plan9Lock struct {
	f *os.File
}

var _ Releaser = (*plan9Lock)(nil)

func (l *plan9Lock) Release() error {
	return l.f.Close()
}

func NewLock(f *os.File) (Releaser, error) {
	l := &plan9Lock{f}
	return l, nil
}
