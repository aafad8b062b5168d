//go:build !whisper

package whisper

func loadModel(string) (Transcriber, error) {
	return nil, ErrUnavailable
}
