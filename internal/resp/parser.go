package resp

import "strconv"

// Type-prefix bytes recognized at the start of a frame.
const (
	prefixSimpleString = '+'
	prefixBulkString   = '$'
	prefixArray        = '*'
	prefixInteger      = ':'

	cr = '\r'
	lf = '\n'
)

// Parser decodes RESP frames from a contiguous byte buffer. A Parser is
// bound to the one buffer passed to NewParser and keeps a cursor into
// it: each successful call to Parse decodes the next frame from where
// the previous call stopped, and a failed call leaves the cursor where
// it was. A Parser cannot be pointed at a different buffer; decoding
// another buffer takes a new Parser from NewParser.
type Parser struct {
	buf []byte
	pos int
}

// NewParser constructs a Parser bound to a fresh input buffer. The
// returned Parser borrows buf; the caller must not mutate buf, and any
// string Items the parser returns alias into it, for as long as the
// Parser or its decoded Items are in use.
func NewParser(buf []byte) *Parser {
	return &Parser{buf: buf}
}

// Parse decodes exactly one RESP frame starting at the Parser's current
// cursor and returns it; Consumed reports the cursor position
// afterwards. Chunked or partial input is not supported: the caller
// must already hold a complete frame.
func (p *Parser) Parse() (Item, error) {
	start := p.pos
	item, err := p.parseOne()
	if err != nil {
		p.pos = start
		return Item{}, err
	}
	return item, nil
}

// Consumed reports how many bytes of the input buffer have been
// consumed by calls to Parse so far.
func (p *Parser) Consumed() int { return p.pos }

func (p *Parser) parseOne() (Item, error) {
	b, err := p.readByte()
	if err != nil {
		return Item{}, err
	}
	switch b {
	case prefixSimpleString:
		return p.parseSimpleString()
	case prefixBulkString:
		return p.parseBulkString()
	case prefixArray:
		return p.parseArray()
	case prefixInteger:
		return p.parseInteger()
	default:
		return Item{}, ErrInvalidInput
	}
}

func (p *Parser) readByte() (byte, error) {
	if p.pos >= len(p.buf) {
		return 0, ErrInvalidInput
	}
	b := p.buf[p.pos]
	p.pos++
	return b, nil
}

// readLine reads bytes up to and including the terminating CRLF,
// returning the bytes before the CR. The next byte after CR must be LF;
// both are consumed as a unit.
func (p *Parser) readLine() ([]byte, error) {
	start := p.pos
	for {
		if p.pos >= len(p.buf) {
			return nil, ErrInvalidInput
		}
		if p.buf[p.pos] == cr {
			line := p.buf[start:p.pos]
			if p.pos+1 >= len(p.buf) || p.buf[p.pos+1] != lf {
				return nil, ErrInvalidInput
			}
			p.pos += 2
			return line, nil
		}
		p.pos++
	}
}

func (p *Parser) parseSimpleString() (Item, error) {
	line, err := p.readLine()
	if err != nil {
		return Item{}, err
	}
	return Item{Kind: KindString, Str: line}, nil
}

func (p *Parser) parseInteger() (Item, error) {
	line, err := p.readLine()
	if err != nil {
		return Item{}, err
	}
	n, err := parseSignedDecimal(line)
	if err != nil {
		return Item{}, err
	}
	return Item{Kind: KindInteger, Int: n}, nil
}

func (p *Parser) parseBulkString() (Item, error) {
	line, err := p.readLine()
	if err != nil {
		return Item{}, err
	}
	length, err := parseSignedDecimal(line)
	if err != nil || length < 0 {
		return Item{}, ErrInvalidInput
	}
	if p.pos+int(length) > len(p.buf) {
		return Item{}, ErrInvalidInput
	}
	data := p.buf[p.pos : p.pos+int(length)]
	p.pos += int(length)
	if p.pos+2 > len(p.buf) || p.buf[p.pos] != cr || p.buf[p.pos+1] != lf {
		return Item{}, ErrInvalidInput
	}
	p.pos += 2
	return Item{Kind: KindString, Str: data}, nil
}

func (p *Parser) parseArray() (Item, error) {
	line, err := p.readLine()
	if err != nil {
		return Item{}, err
	}
	count, err := parseSignedDecimal(line)
	if err != nil || count < 0 {
		return Item{}, ErrInvalidInput
	}
	// An element takes at least one byte, so count can't exceed the
	// remaining buffer. Reject before the make, same as parseBulkString
	// does for length.
	if count > int64(len(p.buf)-p.pos) {
		return Item{}, ErrInvalidInput
	}
	items := make([]Item, 0, count)
	for i := int64(0); i < count; i++ {
		el, err := p.parseOne()
		if err != nil {
			return Item{}, err
		}
		items = append(items, el)
	}
	return Item{Kind: KindList, List: items}, nil
}

// parseSignedDecimal parses an optional leading '-' followed by decimal
// digits. No other sign or whitespace is accepted.
func parseSignedDecimal(b []byte) (int64, error) {
	if len(b) == 0 || b[0] == '+' {
		return 0, ErrInvalidInput
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, ErrInvalidInput
	}
	return n, nil
}
