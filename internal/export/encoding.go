package export

import (
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const utf8Name = "utf-8"

// codePages maps Windows code page numbers to encodings.
var codePages = map[int]encoding.Encoding{
	437:   charmap.CodePage437,
	850:   charmap.CodePage850,
	852:   charmap.CodePage852,
	866:   charmap.CodePage866,
	874:   charmap.Windows874,
	932:   japanese.ShiftJIS,
	936:   simplifiedchinese.GBK,
	949:   korean.EUCKR,
	950:   traditionalchinese.Big5,
	1200:  unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM),
	1201:  unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM),
	1250:  charmap.Windows1250,
	1251:  charmap.Windows1251,
	1252:  charmap.Windows1252,
	1253:  charmap.Windows1253,
	1254:  charmap.Windows1254,
	1255:  charmap.Windows1255,
	1256:  charmap.Windows1256,
	1257:  charmap.Windows1257,
	1258:  charmap.Windows1258,
	20866: charmap.KOI8R,
	21866: charmap.KOI8U,
	28591: charmap.ISO8859_1,
	28592: charmap.ISO8859_2,
	28595: charmap.ISO8859_5,
	28597: charmap.ISO8859_7,
	28605: charmap.ISO8859_15,
	50220: japanese.ISO2022JP,
	51932: japanese.EUCJP,
	54936: simplifiedchinese.GB18030,
	65001: unicode.UTF8,
}

// Encoding is a resolved output encoding. A nil Encoding means UTF-8
// written as is.
type Encoding struct {
	Name     string
	Encoding encoding.Encoding
}

func (e Encoding) transformer() transform.Transformer {
	if e.Encoding == nil {
		return nil
	}
	return e.Encoding.NewEncoder()
}

// ResolveEncoding looks up an IANA name or numeric code page. Anything it
// cannot resolve becomes UTF-8 with a warning rather than failing the export.
func ResolveEncoding(name string) Encoding {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" || n == utf8Name || n == "utf8" {
		return Encoding{Name: utf8Name}
	}

	var enc encoding.Encoding
	if cp, err := strconv.Atoi(n); err == nil {
		enc = codePages[cp]
	} else if e, err := ianaindex.IANA.Encoding(n); err == nil {
		enc = e
	}
	if enc == nil {
		logger.Warn().Str("encoding", name).Msg("unknown output encoding, using utf-8")
		return Encoding{Name: utf8Name}
	}
	if enc == unicode.UTF8 {
		return Encoding{Name: utf8Name}
	}

	// MIME names are what XML declarations and HTTP headers expect
	canonical, err := ianaindex.MIME.Name(enc)
	if err != nil || canonical == "" {
		if canonical, err = ianaindex.IANA.Name(enc); err != nil {
			canonical = n
		}
	}
	return Encoding{Name: strings.ToLower(canonical), Encoding: enc}
}
