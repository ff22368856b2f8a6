package ports

// AudioSink is a push-style PCM writer. Write must not block: it returns the
// number of samples accepted and drops the rest.
type AudioSink interface {
	Write(samples []int16) (int, error)
	Close() error
}

// AuxDecoder turns an auxiliary channel payload into PCM samples.
type AuxDecoder interface {
	Decode(data []byte) ([]int16, error)
}
