package whisper

import (
	"context"
	"io"
	"sync"
)

type fakeLoader struct {
	available error
	loadFn    func(spec LoadSpec) (Model, error)

	mu    sync.Mutex
	loads []LoadSpec
}

func (f *fakeLoader) Available() error { return f.available }

func (f *fakeLoader) Load(_ context.Context, spec LoadSpec) (Model, error) {
	f.mu.Lock()
	f.loads = append(f.loads, spec)
	f.mu.Unlock()

	if f.loadFn != nil {
		return f.loadFn(spec)
	}
	return &fakeModel{}, nil
}

func (f *fakeLoader) recordedLoads() []LoadSpec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LoadSpec(nil), f.loads...)
}

type fakeModel struct {
	transcribeFn func(path string, args DecodeArgs) (SegmentSource, Info, error)

	mu       sync.Mutex
	lastArgs DecodeArgs
	lastPath string
	closed   bool
}

func (m *fakeModel) Transcribe(_ context.Context, path string, args DecodeArgs) (SegmentSource, Info, error) {
	m.mu.Lock()
	m.lastArgs = args
	m.lastPath = path
	m.mu.Unlock()

	if m.transcribeFn != nil {
		return m.transcribeFn(path, args)
	}
	return &sliceSource{}, Info{}, nil
}

func (m *fakeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeModel) wasClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// sliceSource drains a fixed set of segments, then reports failAfter when set
// or io.EOF otherwise.
type sliceSource struct {
	segments  []RawSegment
	failAfter error
	pos       int
	closed    bool
}

func (s *sliceSource) Next() (RawSegment, error) {
	if s.pos >= len(s.segments) {
		if s.failAfter != nil {
			return RawSegment{}, s.failAfter
		}
		return RawSegment{}, io.EOF
	}
	seg := s.segments[s.pos]
	s.pos++
	return seg, nil
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}
