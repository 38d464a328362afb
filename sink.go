package transcoder

// Sink receives the encoded (or copied) tracks of a run. It is used from the
// transcoding goroutine only.
type Sink interface {
	// AddTrack declares an output track and returns its handle.
	AddTrack(format *MediaFormat) (int, error)

	// WriteSample writes one sample. A sample with SampleFlagEndOfStream and
	// no data marks the end of the track.
	WriteSample(track int, s Sample) error

	// Release closes the output. It is called on every outcome.
	Release() error
}
