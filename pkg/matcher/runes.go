package matcher

// byteRunes maps each byte of b to a rune of the same numeric value. Running
// a regexp2.Regexp over the resulting []rune, instead of converting b to a
// Go string first, keeps match offsets in 1:1 correspondence with byte
// offsets into b — a UTF-8 string conversion would collapse or split
// multi-byte sequences and desynchronize offsets whenever a rule's pattern
// or candidate secret happens to contain non-ASCII bytes.
func byteRunes(b []byte) []rune {
	rs := make([]rune, len(b))
	for i, c := range b {
		rs[i] = rune(c)
	}
	return rs
}
