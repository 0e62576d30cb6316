// Package svg checks the sheet music pages embedded in practice songs and
// builds the cursor overlays drawn on top of them.
package svg

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/ianaindex"
)

var (
	ErrNoRoot    = errors.New("document has no root element")
	ErrNotSVG    = errors.New("root element is not svg")
	ErrExtraRoot = errors.New("content after the root element")
)

var bom = []byte("\xef\xbb\xbf")

// charsetReader decodes documents which declare an encoding other than UTF-8.
func charsetReader(label string, input io.Reader) (io.Reader, error) {
	enc, err := ianaindex.IANA.Encoding(label)
	if err != nil {
		return nil, fmt.Errorf("encoding %q: %v", label, err)
	}
	if enc == nil {
		return nil, fmt.Errorf("unsupported encoding %q", label)
	}
	return enc.NewDecoder().Reader(input), nil
}

// Check returns an error if data is not a well-formed SVG document: a single
// svg root element, optionally surrounded by an XML declaration, comments
// and whitespace. A byte order mark and any IANA-registered encoding are
// accepted.
func Check(data []byte) error {
	d := xml.NewDecoder(bytes.NewReader(bytes.TrimPrefix(data, bom)))
	d.Strict = true
	d.CharsetReader = charsetReader
	var depth int
	var done bool
	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			if done {
				return fmt.Errorf("%w: <%s> at offset %d", ErrExtraRoot, tok.Name.Local, d.InputOffset())
			}
			if depth == 0 && tok.Name.Local != "svg" {
				return fmt.Errorf("%w: <%s>", ErrNotSVG, tok.Name.Local)
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				done = true
			}
		case xml.CharData:
			if depth == 0 && len(bytes.TrimSpace(tok)) != 0 {
				return fmt.Errorf("%w: text at offset %d", ErrExtraRoot, d.InputOffset())
			}
		}
	}
	if !done {
		return ErrNoRoot
	}
	return nil
}

// FirstLine returns the first line of the document, without the line
// terminator. Generated pages put the svg start tag on this line.
func FirstLine(data []byte) []byte {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	return bytes.TrimSuffix(data, []byte{'\r'})
}

// OverlayColor is the fill color of the cursor rectangle.
const OverlayColor = "#3070ff"

// Overlay returns a transparent document the size of page, containing only
// the cursor box.
func Overlay(page []byte, left, right, top, bottom uint32) []byte {
	var b bytes.Buffer
	b.Write(FirstLine(page))
	fmt.Fprintf(&b, "\n<rect x=\"%d\" y=\"%d\" width=\"%d\" height=\"%d\" fill=\"%s\" fill-opacity=\"0.3\"/>\n</svg>\n",
		left, top, span(left, right), span(top, bottom), OverlayColor)
	return b.Bytes()
}

func span(lo, hi uint32) uint32 {
	if hi < lo {
		return 0
	}
	return hi - lo
}
