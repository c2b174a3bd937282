package policystore

import "io"

// testSink adapts an io.PipeWriter to raft.SnapshotSink for snapshot tests.
type testSink struct {
	*io.PipeWriter
}

func (s *testSink) ID() string    { return "test-snapshot" }
func (s *testSink) Cancel() error { return s.PipeWriter.Close() }

// newPipe returns a connected (reader, sink) pair so a snapshot's Persist
// can stream directly into a Restore call within a test, without touching
// disk.
func newPipe() (io.ReadCloser, *testSink) {
	r, w := io.Pipe()
	return r, &testSink{PipeWriter: w}
}
