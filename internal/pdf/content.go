package pdf

import (
	"bytes"
	"math"
	"strconv"
	"unicode/utf16"
)

// TextRun is one shown string with its estimated extent in PDF user space
// (origin bottom-left).
type TextRun struct {
	Text     string
	X        float64
	Baseline float64
	Width    float64
	Size     float64
}

// Segment is a stroked or filled straight edge in PDF user space. Rect marks
// edges that came from a re operator.
type Segment struct {
	X0, Y0, X1, Y1 float64
	Rect           bool
}

// Length returns the euclidean length of the segment
func (s Segment) Length() float64 { return math.Hypot(s.X1-s.X0, s.Y1-s.Y0) }

// Content is the interpreted drawing of one page
type Content struct {
	Runs     []TextRun
	Segments []Segment

	imageAreas map[string]float64
	otherArea  float64 // Do operators whose name was not matched, plus inline images
}

// ImageArea returns the device-space area covered by image placements. When
// names is empty, or none of the drawn XObjects match it, every placement counts.
func (c *Content) ImageArea(names map[string]bool) float64 {
	var matched, all float64
	for name, a := range c.imageAreas {
		all += a
		if names[name] {
			matched += a
		}
	}
	if len(names) == 0 || matched == 0 {
		return all + c.otherArea
	}
	return matched + c.otherArea
}

type matrix [6]float64

var identity = matrix{1, 0, 0, 1, 0, 0}

// mul returns m x n (apply m first, then n)
func (m matrix) mul(n matrix) matrix {
	return matrix{
		m[0]*n[0] + m[1]*n[2],
		m[0]*n[1] + m[1]*n[3],
		m[2]*n[0] + m[3]*n[2],
		m[2]*n[1] + m[3]*n[3],
		m[4]*n[0] + m[5]*n[2] + n[4],
		m[4]*n[1] + m[5]*n[3] + n[5],
	}
}

func (m matrix) apply(x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

func translate(tx, ty float64) matrix { return matrix{1, 0, 0, 1, tx, ty} }

// glyphAdvance approximates the advance of one glyph in text space units,
// relative to the font size. Font metrics are not loaded.
const glyphAdvance = 0.5

// Interpret runs a page content stream and collects text runs, straight path
// edges and image placements. Unknown operators are ignored; malformed input
// ends interpretation without error, keeping what was collected so far.
func Interpret(data []byte) *Content {
	in := &interpreter{
		lex:     lexer{data: data},
		ctm:     identity,
		tm:      identity,
		tlm:     identity,
		content: &Content{imageAreas: map[string]float64{}},
	}
	in.run()
	return in.content
}

type interpreter struct {
	lex      lexer
	operands []token
	content  *Content

	ctm   matrix
	stack []matrix

	tm, tlm  matrix
	fontSize float64
	leading  float64

	pathStart, current [2]float64
	pending            []Segment
}

func (in *interpreter) run() {
	for {
		tok, ok := in.lex.next()
		if !ok {
			return
		}
		if tok.kind != tokOperator {
			in.operands = append(in.operands, tok)
			continue
		}
		in.exec(tok.op)
		in.operands = in.operands[:0]
	}
}

func (in *interpreter) num(i int) float64 {
	if i < 0 || i >= len(in.operands) || in.operands[i].kind != tokNumber {
		return 0
	}
	return in.operands[i].num
}

// nums returns the last n numeric operands, or false when there are fewer
func (in *interpreter) nums(n int) ([]float64, bool) {
	if len(in.operands) < n {
		return nil, false
	}
	out := make([]float64, n)
	for i, t := range in.operands[len(in.operands)-n:] {
		if t.kind != tokNumber {
			return nil, false
		}
		out[i] = t.num
	}
	return out, true
}

func (in *interpreter) exec(op string) {
	switch op {
	case "q":
		in.stack = append(in.stack, in.ctm)
	case "Q":
		if n := len(in.stack); n > 0 {
			in.ctm = in.stack[n-1]
			in.stack = in.stack[:n-1]
		}
	case "cm":
		if v, ok := in.nums(6); ok {
			in.ctm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}.mul(in.ctm)
		}

	case "BT":
		in.tm, in.tlm = identity, identity
	case "Tf":
		if len(in.operands) >= 2 {
			in.fontSize = in.num(len(in.operands) - 1)
		}
	case "TL":
		if v, ok := in.nums(1); ok {
			in.leading = v[0]
		}
	case "Td":
		if v, ok := in.nums(2); ok {
			in.moveLine(v[0], v[1])
		}
	case "TD":
		if v, ok := in.nums(2); ok {
			in.leading = -v[1]
			in.moveLine(v[0], v[1])
		}
	case "Tm":
		if v, ok := in.nums(6); ok {
			in.tlm = matrix{v[0], v[1], v[2], v[3], v[4], v[5]}
			in.tm = in.tlm
		}
	case "T*":
		in.moveLine(0, -in.leading)
	case "Tj":
		if s, ok := in.lastString(); ok {
			in.show(s)
		}
	case "'":
		in.moveLine(0, -in.leading)
		if s, ok := in.lastString(); ok {
			in.show(s)
		}
	case "\"":
		in.moveLine(0, -in.leading)
		if s, ok := in.lastString(); ok {
			in.show(s)
		}
	case "TJ":
		in.showArray()

	case "m":
		if v, ok := in.nums(2); ok {
			in.pathStart = [2]float64{v[0], v[1]}
			in.current = in.pathStart
		}
	case "l":
		if v, ok := in.nums(2); ok {
			in.addEdge(in.current[0], in.current[1], v[0], v[1], false)
			in.current = [2]float64{v[0], v[1]}
		}
	case "c":
		if v, ok := in.nums(6); ok {
			in.current = [2]float64{v[4], v[5]}
		}
	case "v", "y":
		if v, ok := in.nums(4); ok {
			in.current = [2]float64{v[2], v[3]}
		}
	case "h":
		in.addEdge(in.current[0], in.current[1], in.pathStart[0], in.pathStart[1], false)
		in.current = in.pathStart
	case "re":
		if v, ok := in.nums(4); ok {
			x, y, w, h := v[0], v[1], v[2], v[3]
			in.addEdge(x, y, x+w, y, true)
			in.addEdge(x+w, y, x+w, y+h, true)
			in.addEdge(x+w, y+h, x, y+h, true)
			in.addEdge(x, y+h, x, y, true)
			in.pathStart = [2]float64{x, y}
			in.current = in.pathStart
		}
	case "S", "s", "f", "F", "f*", "B", "B*", "b", "b*":
		in.content.Segments = append(in.content.Segments, in.pending...)
		in.pending = in.pending[:0]
	case "n":
		in.pending = in.pending[:0]

	case "Do":
		if len(in.operands) > 0 && in.operands[len(in.operands)-1].kind == tokName {
			in.content.imageAreas[in.operands[len(in.operands)-1].name] += in.unitArea()
		}
	case "BI":
		in.lex.skipInlineImage()
		in.content.otherArea += in.unitArea()
	}
}

// unitArea is the device area of the unit square under the current CTM
func (in *interpreter) unitArea() float64 {
	m := in.ctm
	return math.Abs(m[0]*m[3] - m[1]*m[2])
}

func (in *interpreter) addEdge(x0, y0, x1, y1 float64, rect bool) {
	ax, ay := in.ctm.apply(x0, y0)
	bx, by := in.ctm.apply(x1, y1)
	in.pending = append(in.pending, Segment{X0: ax, Y0: ay, X1: bx, Y1: by, Rect: rect})
}

func (in *interpreter) moveLine(tx, ty float64) {
	in.tlm = translate(tx, ty).mul(in.tlm)
	in.tm = in.tlm
}

func (in *interpreter) lastString() ([]byte, bool) {
	if len(in.operands) == 0 {
		return nil, false
	}
	t := in.operands[len(in.operands)-1]
	return t.str, t.kind == tokString
}

func (in *interpreter) showArray() {
	start := -1
	for i, t := range in.operands {
		if t.kind == tokArrayStart {
			start = i
		}
	}
	if start < 0 {
		return
	}
	var buf []byte
	flush := func() {
		if len(buf) > 0 {
			in.show(buf)
			buf = nil
		}
	}
	for _, t := range in.operands[start+1:] {
		switch t.kind {
		case tokString:
			buf = append(buf, t.str...)
		case tokNumber:
			// large negative kerning is a visual gap between words or columns;
			// small adjustments inside a word are ignored
			if t.num < -200 {
				flush()
				in.tm = translate(-t.num/1000*in.fontSize, 0).mul(in.tm)
			}
		}
	}
	flush()
}

func (in *interpreter) show(raw []byte) {
	text := decodeText(raw)
	n := len([]rune(text))
	if n == 0 {
		return
	}
	trm := in.tm.mul(in.ctm)
	x, y := trm.apply(0, 0)
	hscale := math.Hypot(trm[0], trm[1])
	vscale := math.Hypot(trm[2], trm[3])

	advance := float64(n) * glyphAdvance * in.fontSize
	size := in.fontSize * vscale
	if size <= 0 {
		size = in.fontSize
	}
	in.content.Runs = append(in.content.Runs, TextRun{
		Text:     text,
		X:        x,
		Baseline: y,
		Width:    advance * hscale,
		Size:     size,
	})
	in.tm = translate(advance, 0).mul(in.tm)
}

// decodeText maps a PDF string to text: UTF-16BE with a byte order mark,
// otherwise bytes are read as Latin-1, which covers the simple encodings used
// for Nordic characters.
func decodeText(b []byte) string {
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		u := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			u = append(u, uint16(b[i])<<8|uint16(b[i+1]))
		}
		return string(utf16.Decode(u))
	}
	rs := make([]rune, 0, len(b))
	for _, c := range b {
		if c < 0x20 && c != '\t' {
			continue
		}
		rs = append(rs, rune(c))
	}
	return string(rs)
}

type tokenKind int

const (
	tokNumber tokenKind = iota
	tokString
	tokName
	tokOperator
	tokArrayStart
	tokArrayEnd
	tokDictStart
	tokDictEnd
)

type token struct {
	kind tokenKind
	num  float64
	str  []byte
	name string
	op   string
}

type lexer struct {
	data []byte
	pos  int
}

func isWhite(c byte) bool {
	return c == ' ' || c == '\n' || c == '\r' || c == '\t' || c == '\f' || c == 0
}

func isDelim(c byte) bool {
	return bytes.IndexByte([]byte("()<>[]{}/%"), c) >= 0
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		switch {
		case isWhite(c):
			l.pos++
		case c == '%':
			for l.pos < len(l.data) && l.data[l.pos] != '\n' && l.data[l.pos] != '\r' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (token, bool) {
	l.skipSpace()
	if l.pos >= len(l.data) {
		return token{}, false
	}
	c := l.data[l.pos]
	switch {
	case c == '(':
		l.pos++
		return token{kind: tokString, str: l.literal()}, true
	case c == '<':
		if l.pos+1 < len(l.data) && l.data[l.pos+1] == '<' {
			l.pos += 2
			return token{kind: tokDictStart}, true
		}
		l.pos++
		return token{kind: tokString, str: l.hex()}, true
	case c == '>':
		l.pos++
		if l.pos < len(l.data) && l.data[l.pos] == '>' {
			l.pos++
		}
		return token{kind: tokDictEnd}, true
	case c == '[':
		l.pos++
		return token{kind: tokArrayStart}, true
	case c == ']':
		l.pos++
		return token{kind: tokArrayEnd}, true
	case c == '{' || c == '}':
		l.pos++
		return l.next()
	case c == '/':
		l.pos++
		return token{kind: tokName, name: string(l.regular())}, true
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		word := l.regular()
		if f, err := strconv.ParseFloat(string(word), 64); err == nil {
			return token{kind: tokNumber, num: f}, true
		}
		return token{kind: tokOperator, op: string(word)}, true
	default:
		word := l.regular()
		if len(word) == 0 {
			l.pos++
			return l.next()
		}
		return token{kind: tokOperator, op: string(word)}, true
	}
}

func (l *lexer) regular() []byte {
	start := l.pos
	for l.pos < len(l.data) && !isWhite(l.data[l.pos]) && !isDelim(l.data[l.pos]) {
		l.pos++
	}
	return l.data[start:l.pos]
}

func (l *lexer) literal() []byte {
	var out []byte
	depth := 1
	for l.pos < len(l.data) {
		c := l.data[l.pos]
		l.pos++
		switch c {
		case '(':
			depth++
			out = append(out, c)
		case ')':
			depth--
			if depth == 0 {
				return out
			}
			out = append(out, c)
		case '\\':
			if l.pos >= len(l.data) {
				return out
			}
			e := l.data[l.pos]
			l.pos++
			switch e {
			case 'n':
				out = append(out, '\n')
			case 'r':
				out = append(out, '\r')
			case 't':
				out = append(out, '\t')
			case 'b', 'f':
			case '\r', '\n':
				// line continuation
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for k := 0; k < 2 && l.pos < len(l.data) && l.data[l.pos] >= '0' && l.data[l.pos] <= '7'; k++ {
						v = v*8 + int(l.data[l.pos]-'0')
						l.pos++
					}
					out = append(out, byte(v))
				} else {
					out = append(out, e)
				}
			}
		default:
			out = append(out, c)
		}
	}
	return out
}

func (l *lexer) hex() []byte {
	var digits []byte
	for l.pos < len(l.data) && l.data[l.pos] != '>' {
		c := l.data[l.pos]
		l.pos++
		if !isWhite(c) {
			digits = append(digits, c)
		}
	}
	l.pos++ // closing '>'
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	out := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			continue
		}
		out = append(out, byte(v))
	}
	return out
}

// skipInlineImage advances past the binary payload of a BI ... ID ... EI block
func (l *lexer) skipInlineImage() {
	id := bytes.Index(l.data[l.pos:], []byte("ID"))
	if id < 0 {
		l.pos = len(l.data)
		return
	}
	l.pos += id + 2
	for l.pos < len(l.data) {
		ei := bytes.Index(l.data[l.pos:], []byte("EI"))
		if ei < 0 {
			l.pos = len(l.data)
			return
		}
		at := l.pos + ei
		l.pos = at + 2
		if at > 0 && isWhite(l.data[at-1]) && (l.pos >= len(l.data) || isWhite(l.data[l.pos])) {
			return
		}
	}
}
