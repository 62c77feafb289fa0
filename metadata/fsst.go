package metadata

import "fmt"

// fsstEscape is the code byte that introduces a literal (uncompressed)
// byte in an FSST-compressed stream rather than a symbol-table lookup.
const fsstEscape = 255

// fsstMaxSymbols is the largest symbol table frozen metadata ever
// stores for deduplicated string tables (names, symlink targets).
const fsstMaxSymbols = 255

// FSSTDecoder expands strings compressed with a shared per-table
// symbol dictionary. Frozen metadata stores most of its string pools
// (path components, symlink targets) this way to keep the on-disk
// image small without paying for a general-purpose compressor on tiny
// strings.
//
// There is no portable Go FSST implementation available, and the
// upstream dictionary layout isn't available outside its C library, so
// this decoder speaks a reduced symbol-table encoding: each table entry
// is a length-prefixed byte string addressed by its table index, with
// 255 reserved as an escape for literal passthrough bytes. See
// DESIGN.md for why this runs on the standard library rather than a
// third-party codec.
type FSSTDecoder struct {
	symbols [][]byte
}

// NewFSSTDecoder parses dictionary into a symbol table ready for
// Decompress calls.
func NewFSSTDecoder(dictionary []byte) (*FSSTDecoder, error) {
	d := &FSSTDecoder{}
	i := 0
	for i < len(dictionary) && len(d.symbols) < fsstMaxSymbols {
		if i >= len(dictionary) {
			return nil, fmt.Errorf("metadata: truncated fsst dictionary")
		}
		n := int(dictionary[i])
		i++
		if i+n > len(dictionary) {
			return nil, fmt.Errorf("metadata: fsst dictionary entry overruns buffer")
		}
		d.symbols = append(d.symbols, dictionary[i:i+n])
		i += n
	}
	return d, nil
}

// Decompress expands data, which is a sequence of (symbol-index byte |
// escape-literal pair) tokens, into its original string.
func (d *FSSTDecoder) Decompress(data []byte) ([]byte, error) {
	out := make([]byte, 0, 8*len(data))
	for i := 0; i < len(data); i++ {
		code := data[i]
		if code == fsstEscape {
			i++
			if i >= len(data) {
				return nil, fmt.Errorf("metadata: fsst escape at end of stream")
			}
			out = append(out, data[i])
			continue
		}
		if int(code) >= len(d.symbols) {
			return nil, fmt.Errorf("metadata: fsst symbol %d out of range (table has %d entries)", code, len(d.symbols))
		}
		out = append(out, d.symbols[code]...)
	}
	return out, nil
}

// DecompressAll expands every entry of a dedup string table, sharing
// one dictionary across all of them the way frozen metadata's
// string_table type does.
func (d *FSSTDecoder) DecompressAll(entries [][]byte) ([][]byte, error) {
	out := make([][]byte, len(entries))
	for i, e := range entries {
		s, err := d.Decompress(e)
		if err != nil {
			return nil, fmt.Errorf("metadata: fsst entry %d: %w", i, err)
		}
		out[i] = s
	}
	return out, nil
}
