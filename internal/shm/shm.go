// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package shm provides the named shared mapping the queue backends build
// their rings on.
//
// A segment is a file of fixed size mapped MAP_SHARED into every attached
// process. The endpoint that wins the exclusive create becomes the
// creator: it sizes the file (which also zeroes it) and is responsible for
// unlinking the name on Close. The other endpoint attaches to the existing
// file and maps the same pages.
package shm

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// Segment is one process' view of a named shared mapping.
type Segment struct {
	f       *os.File
	mem     []byte
	path    string
	creator bool
}

// Open creates or attaches the shared mapping at path with the given size
// in bytes.
//
// Creation is attempted exclusively first; if the file already exists the
// call attaches instead. The creator truncates the file to size, which
// leaves the mapping zero-filled. An attaching endpoint must only be
// started after the creator finished initializing the mapping; the
// backends document this handshake.
func Open(path string, size int) (*Segment, error) {
	creator := true
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		if !errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("shm: create %s: %w", path, err)
		}
		creator = false
		f, err = os.OpenFile(path, os.O_RDWR, 0o600)
		if err != nil {
			return nil, fmt.Errorf("shm: attach %s: %w", path, err)
		}
	}

	if creator {
		if err := f.Truncate(int64(size)); err != nil {
			f.Close()
			os.Remove(path)
			return nil, fmt.Errorf("shm: size %s: %w", path, err)
		}
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, size,
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		if creator {
			os.Remove(path)
		}
		return nil, fmt.Errorf("shm: mmap %s: %w", path, err)
	}

	return &Segment{f: f, mem: mem, path: path, creator: creator}, nil
}

// Bytes returns the mapped memory. The mapping is page-aligned, so any
// 64-byte slot layout placed at offset 0 stays cache-line-aligned.
func (s *Segment) Bytes() []byte {
	return s.mem
}

// Creator reports whether this endpoint created the segment.
func (s *Segment) Creator() bool {
	return s.creator
}

// Path returns the file name backing the segment.
func (s *Segment) Path() string {
	return s.path
}

// Close unmaps the segment and, on the creator, unlinks the name. The
// pages live on until every attached endpoint has unmapped.
func (s *Segment) Close() error {
	var first error
	if s.mem != nil {
		if err := unix.Munmap(s.mem); err != nil && first == nil {
			first = fmt.Errorf("shm: munmap %s: %w", s.path, err)
		}
		s.mem = nil
	}
	if s.f != nil {
		if err := s.f.Close(); err != nil && first == nil {
			first = fmt.Errorf("shm: close %s: %w", s.path, err)
		}
		s.f = nil
	}
	if s.creator {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) && first == nil {
			first = fmt.Errorf("shm: unlink %s: %w", s.path, err)
		}
	}
	return first
}
