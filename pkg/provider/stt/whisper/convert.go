package whisper

// SamplesToFloat32 converts 16-bit PCM samples to float32 normalised to the
// range [-1.0, 1.0), the input format whisper.cpp expects.
func SamplesToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = float32(s) / 32768.0
	}
	return out
}
