package audio

// Sink is the client-side collaborator: the platform audio playback
// backend the decoded/decompressed stream is written to (spec §6.5,
// out-of-scope: "Platform audio playback/capture backends").
type Sink interface {
	Open(format AudioFormat) error
	Write(pcm []byte) error
	Drain() error
	Close() error
}

// Source is the server-side collaborator: the host mixer capture device
// the redirection loop samples frames from.
type Source interface {
	Open(format AudioFormat) error
	Read(buf []byte) (n int, err error)
	Close() error
}
