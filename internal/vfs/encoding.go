package vfs

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
)

// Encoding represents a character encoding.
type Encoding string

const (
	// EncodingUTF8 is UTF-8 encoding (default).
	EncodingUTF8 Encoding = "utf-8"

	// EncodingUTF8BOM is UTF-8 encoding with BOM.
	EncodingUTF8BOM Encoding = "utf-8-bom"

	// EncodingUTF16LE is UTF-16 Little Endian.
	EncodingUTF16LE Encoding = "utf-16le"

	// EncodingUTF16BE is UTF-16 Big Endian.
	EncodingUTF16BE Encoding = "utf-16be"
)

// BOM (Byte Order Mark) constants
var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// DetectEncoding inspects the leading bytes for a BOM marker.
// Content without a BOM is treated as UTF-8.
func DetectEncoding(content []byte) Encoding {
	if bytes.HasPrefix(content, bomUTF8) {
		return EncodingUTF8BOM
	}
	if bytes.HasPrefix(content, bomUTF16LE) {
		return EncodingUTF16LE
	}
	if bytes.HasPrefix(content, bomUTF16BE) {
		return EncodingUTF16BE
	}
	return EncodingUTF8
}

// DecodeText decodes raw file bytes to a string according to the
// detected encoding. The BOM, if present, is not part of the result.
func DecodeText(content []byte) (string, Encoding, error) {
	enc := DetectEncoding(content)
	switch enc {
	case EncodingUTF8BOM:
		return string(content[len(bomUTF8):]), enc, nil
	case EncodingUTF16LE:
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(content)
		if err != nil {
			return "", enc, err
		}
		return string(out), enc, nil
	case EncodingUTF16BE:
		dec := unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM).NewDecoder()
		out, err := dec.Bytes(content)
		if err != nil {
			return "", enc, err
		}
		return string(out), enc, nil
	default:
		return string(content), EncodingUTF8, nil
	}
}

// DecodeContinuation decodes bytes read from the middle of a file whose
// encoding was already detected from its head. There is no BOM at this
// point: UTF-16 content decodes with the known byte order, everything
// else passes through as UTF-8.
func DecodeContinuation(content []byte, enc Encoding) (string, error) {
	switch enc {
	case EncodingUTF16LE:
		dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(content)
		if err != nil {
			return "", err
		}
		return string(out), nil
	case EncodingUTF16BE:
		dec := unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM).NewDecoder()
		out, err := dec.Bytes(content)
		if err != nil {
			return "", err
		}
		return string(out), nil
	default:
		return string(content), nil
	}
}

// NormalizeLineEndings converts all three line-ending styles
// (\r\n, \r, \n) to \n.
func NormalizeLineEndings(content string) string {
	if !hasCR(content) {
		return content
	}

	b := make([]byte, 0, len(content))
	for i := 0; i < len(content); i++ {
		if content[i] == '\r' {
			if i+1 < len(content) && content[i+1] == '\n' {
				i++ // Skip the \n
			}
			b = append(b, '\n')
		} else {
			b = append(b, content[i])
		}
	}
	return string(b)
}

func hasCR(content string) bool {
	for i := 0; i < len(content); i++ {
		if content[i] == '\r' {
			return true
		}
	}
	return false
}

// CountLines counts the number of newline-terminated lines in content.
func CountLines(content []byte) int {
	if len(content) == 0 {
		return 0
	}

	lines := 1
	for i := 0; i < len(content); i++ {
		if content[i] == '\r' {
			lines++
			if i+1 < len(content) && content[i+1] == '\n' {
				i++ // Skip the \n in CRLF
			}
		} else if content[i] == '\n' {
			lines++
		}
	}

	// Don't count trailing newline as extra line
	lastByte := content[len(content)-1]
	if lastByte == '\n' || lastByte == '\r' {
		lines--
	}

	return lines
}

// CountNewlines counts newline characters in content.
// Used by the analyzer to extrapolate line density from a head sample.
func CountNewlines(content []byte) int {
	return bytes.Count(content, []byte{'\n'})
}

// IsBinary attempts to detect if content is binary (not text).
// Uses heuristics: presence of null bytes, high ratio of non-printable
// characters.
func IsBinary(content []byte) bool {
	if len(content) == 0 {
		return false
	}

	// Check first 8KB at most
	checkLen := len(content)
	if checkLen > 8192 {
		checkLen = 8192
	}

	sample := content[:checkLen]

	// UTF-16 text contains null bytes but is not binary.
	if bytes.HasPrefix(sample, bomUTF16LE) || bytes.HasPrefix(sample, bomUTF16BE) {
		return false
	}

	// Null bytes are a strong indicator of binary
	if bytes.Contains(sample, []byte{0}) {
		return true
	}

	// Count non-text bytes (control characters except tab, newline, carriage return)
	nonText := 0
	for _, b := range sample {
		if b < 32 && b != '\t' && b != '\n' && b != '\r' {
			nonText++
		}
	}

	// If more than 10% are non-text, consider it binary
	return float64(nonText)/float64(checkLen) > 0.1
}

// ValidUTF8 reports whether content is valid UTF-8.
func ValidUTF8(content []byte) bool {
	return utf8.Valid(content)
}
