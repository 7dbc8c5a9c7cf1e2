// Package cleanup implements the cleanup manager (C5): scoped acquisition
// of temp files and directories with guaranteed release on every job exit
// path (success, failure, cancel, crash).
//
// Grounded on the teacher's internal/services/ffmpeg.go CreateTempFile/
// Cleanup pair, generalized from "one ffmpeg call's temp files" into a
// scope that any stage can register paths into, with an
// explicit transfer-out for artifacts the caller wants to keep.
package cleanup

import (
	"fmt"
	"os"
	"sync"
)

// Scope is a lifetime-bound set of temporary paths released on Close.
// Release is idempotent: closing an already-closed scope is a no-op, and
// a missing file is not treated as an error.
type Scope struct {
	mu        sync.Mutex
	paths     []string
	closed    bool
	onWarning func(path string, err error)
}

// NewScope returns an open Scope. onWarning, if non-nil, is called for
// every path whose removal fails for a reason other than "already gone".
func NewScope(onWarning func(path string, err error)) *Scope {
	return &Scope{onWarning: onWarning}
}

// RegisterTemp adds path to the scope; it is removed when the scope closes
// unless first released via TransferOut.
func (s *Scope) RegisterTemp(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.paths = append(s.paths, path)
}

// TransferOut removes path from the scope's managed set without deleting
// it, for final artifacts the caller wants to keep past scope close.
func (s *Scope) TransferOut(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, p := range s.paths {
		if p == path {
			s.paths = append(s.paths[:i], s.paths[i+1:]...)
			return
		}
	}
}

// Close removes every remaining registered path. Safe to call more than
// once; subsequent calls are no-ops.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	paths := s.paths
	s.paths = nil
	s.closed = true
	warn := s.onWarning
	s.mu.Unlock()

	for _, p := range paths {
		if err := os.RemoveAll(p); err != nil && !os.IsNotExist(err) {
			if warn != nil {
				warn(p, fmt.Errorf("cleanup: remove %s: %w", p, err))
			}
		}
	}
}

// Registered returns a snapshot of the paths currently held by the scope,
// chiefly for tests asserting the "no leftover temp files" property.
func (s *Scope) Registered() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}
