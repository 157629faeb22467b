package image

import (
	"bytes"
	"encoding/binary"
	"unicode/utf8"

	exifundefined "github.com/dsoprea/go-exif/v3/undefined"
	"golang.org/x/text/encoding/unicode"

	"github.com/metaphotor/metaphotor/core"
)

// UserComment starts with an 8-byte character code.
var (
	charsetASCII     = []byte("ASCII\x00\x00\x00")
	charsetUnicode   = []byte("UNICODE\x00")
	charsetJIS       = []byte("JIS\x00\x00\x00\x00\x00")
	charsetUndefined = make([]byte, 8)
)

func utf16Encoding(order binary.ByteOrder) unicode.Endianness {
	if order == binary.BigEndian {
		return unicode.BigEndian
	}
	return unicode.LittleEndian
}

// decodeUserComment strips the character code and decodes the text.
// UNICODE comments are UTF-16 in the byte order of the EXIF block.
func decodeUserComment(val []byte, order binary.ByteOrder) string {
	if len(val) < 8 {
		return core.SanitizeString(val)
	}
	code, body := val[:8], val[8:]
	switch {
	case bytes.Equal(code, charsetUnicode):
		dec := unicode.UTF16(utf16Encoding(order), unicode.IgnoreBOM).NewDecoder()
		text, err := dec.Bytes(body)
		if err != nil {
			return core.SanitizeString(body)
		}
		return core.SanitizeString(text)
	case bytes.Equal(code, charsetASCII), bytes.Equal(code, charsetJIS), bytes.Equal(code, charsetUndefined):
		return core.SanitizeString(body)
	default:
		return core.SanitizeString(val)
	}
}

// encodeUserComment stores plain ASCII under the ASCII code and anything else
// as UTF-16 under the UNICODE code.
func encodeUserComment(s string, order binary.ByteOrder) exifundefined.Tag9286UserComment {
	uc := exifundefined.Tag9286UserComment{
		EncodingType:  exifundefined.TagUndefinedType_9286_UserComment_Encoding_ASCII,
		EncodingBytes: []byte(s),
	}
	if isASCII(s) {
		return uc
	}
	enc := unicode.UTF16(utf16Encoding(order), unicode.IgnoreBOM).NewEncoder()
	body, err := enc.Bytes([]byte(s))
	if err != nil {
		return uc
	}
	uc.EncodingType = exifundefined.TagUndefinedType_9286_UserComment_Encoding_UNICODE
	uc.EncodingBytes = body
	return uc
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
