package player

// findMP3FrameSync returns the offset of the first MP3 frame sync word: 0xFF
// followed by a byte whose high nibble is 0xE or 0xF. Returns -1 if not found.
func findMP3FrameSync(data []byte) int {
	for i := 0; i < len(data)-1; i++ {
		if data[i] == 0xFF && data[i+1]&0xE0 == 0xE0 {
			return i
		}
	}
	return -1
}
