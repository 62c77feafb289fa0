package codec

// newNoneDecompressor handles uncompressed sections: the payload is the
// uncompressed content verbatim.
func newNoneDecompressor(compressed []byte) (Decompressor, error) {
	return newStreamDecompressor(func() ([]byte, error) {
		return compressed, nil
	}), nil
}
