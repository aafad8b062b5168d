package audio

// Sample returns the i-th signed 16-bit little-endian sample of pcm.
// The caller guarantees 2*i+1 < len(pcm).
func Sample(pcm []byte, i int) int16 {
	return int16(pcm[2*i]) | int16(pcm[2*i+1])<<8
}

// PutSample stores s as the i-th little-endian sample of pcm.
func PutSample(pcm []byte, i int, s int16) {
	pcm[2*i] = byte(s)
	pcm[2*i+1] = byte(s >> 8)
}

// Downmix averages the channels of each interleaved frame of pcm into a
// single mono sample and writes the result into dst, reusing its capacity
// when large enough. The channel sum is divided by the channel count with
// truncation toward zero. Trailing bytes that do not form a whole frame are
// ignored. Channels < 1 yields an empty result.
func Downmix(dst, pcm []byte, channels int) []byte {
	if channels < 1 {
		return dst[:0]
	}
	frames := len(pcm) / (2 * channels)
	if cap(dst) < frames*2 {
		dst = make([]byte, frames*2)
	}
	dst = dst[:frames*2]
	for f := range frames {
		var sum int32
		for ch := range channels {
			sum += int32(Sample(pcm, f*channels+ch))
		}
		PutSample(dst, f, int16(sum/int32(channels)))
	}
	return dst
}

// Int16sToBytes converts a slice of int16 PCM samples to little-endian bytes.
func Int16sToBytes(pcm []int16) []byte {
	b := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		PutSample(b, i, s)
	}
	return b
}
