package svg

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

const page = `<svg xmlns="http://www.w3.org/2000/svg" width="210mm" height="297mm" viewBox="0 0 2100 2970">
<g><path d="M0 0L10 10"/></g>
</svg>
`

func TestCheck(t *testing.T) {
	type testcase struct {
		name string
		data string
		err  error
	}
	cases := []testcase{
		{"page", page, nil},
		{"declaration", "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<!-- page 1 -->\n<svg/>\n", nil},
		{"empty", "", ErrNoRoot},
		{"whitespace", " \n", ErrNoRoot},
		{"html", "<html><body/></html>", ErrNotSVG},
		{"two roots", "<svg/><svg/>", ErrExtraRoot},
		{"text after root", "<svg/>garbage", ErrExtraRoot},
		{"byte order mark", "\xef\xbb\xbf<svg xmlns=\"http://www.w3.org/2000/svg\"/>\n", nil},
		{"byte order mark and declaration", "\xef\xbb\xbf<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n<svg/>", nil},
		{"latin-1", "<?xml version=\"1.0\" encoding=\"ISO-8859-1\"?>\n<svg><text>caf\xe9</text></svg>", nil},
		{"windows-1252", "<?xml version=\"1.0\" encoding=\"windows-1252\"?><svg><text>\x93q\x94</text></svg>", nil},
	}
	for _, c := range cases {
		err := Check([]byte(c.data))
		if !errors.Is(err, c.err) {
			t.Errorf("%s: got %v, expected %v", c.name, err, c.err)
		}
	}
}

func TestCheckMalformed(t *testing.T) {
	for _, data := range []string{
		"<svg>",
		"<svg><g></svg>",
		"<svg width=10/>",
		"<svg>&nbsp;</svg>",
		"<?xml version=\"1.0\" encoding=\"no-such-charset\"?><svg/>",
		"\xef\xbb\xbf\xef\xbb\xbf<svg/>",
	} {
		assert.Error(t, Check([]byte(data)), data)
	}
}

func TestFirstLine(t *testing.T) {
	assert.Equal(t, `<svg xmlns="http://www.w3.org/2000/svg" width="210mm" height="297mm" viewBox="0 0 2100 2970">`, string(FirstLine([]byte(page))))
	assert.Equal(t, "<svg/>", string(FirstLine([]byte("<svg/>"))))
	assert.Equal(t, "<svg>", string(FirstLine([]byte("<svg>\r\n</svg>"))))
}

func TestOverlay(t *testing.T) {
	o := Overlay([]byte(page), 100, 150, 20, 220)
	assert.NoError(t, Check(o))
	assert.Contains(t, string(o), `<rect x="100" y="20" width="50" height="200"`)
	assert.Contains(t, string(Overlay([]byte(page), 10, 5, 0, 0)), `width="0" height="0"`)
}
