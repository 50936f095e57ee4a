// Package chunker splits extracted document text into overlapping, size-bounded pieces.
package chunker

import "unicode"

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 800

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 120

// Piece is one chunk of text plus where it sits in the source.
//
// StartChar/EndChar are rune offsets into the input, EndChar exclusive.
type Piece struct {
	Index      int
	Content    string
	StartChar  int
	EndChar    int
	TokenCount int
}

// Chunker cuts text on a fixed grid and nudges each cut to a natural boundary.
type Chunker struct {
	chunkSize int
	overlap   int
}

// Option configures the chunker.
type Option func(*Chunker)

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// New creates a chunker with the given options.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// ChunkSize returns the configured maximum chunk length.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// Overlap returns the configured overlap.
func (c *Chunker) Overlap() int { return c.overlap }

// Split cuts text into pieces of at most ChunkSize runes.
//
// Piece i always lies inside the grid window [i*stride, i*stride+size) where
// stride = size-overlap. The end of a piece is pulled back to the latest
// paragraph break, sentence end or whitespace inside the overlap window, and
// the next piece starts at the first word start inside that same window, so
// consecutive pieces overlap or touch but never leave a gap.
func (c *Chunker) Split(text string) []Piece {
	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return nil
	}
	if n <= c.chunkSize {
		return []Piece{c.piece(0, runes, 0, n)}
	}

	stride := c.chunkSize - c.overlap
	pieces := make([]Piece, 0, (n+stride-1)/stride)

	start, prevEnd := 0, 0
	for i := 0; ; i++ {
		gridStart := i * stride
		gridEnd := gridStart + c.chunkSize
		if gridEnd >= n {
			pieces = append(pieces, c.piece(i, runes, start, n))
			return c.tail(pieces, runes, i+1, stride)
		}

		nextGrid := gridStart + stride
		lo := max(nextGrid, prevEnd+1, start+1)
		end := cutPoint(runes, lo, gridEnd)
		pieces = append(pieces, c.piece(i, runes, start, end))

		prevEnd = end
		start = wordStart(runes, nextGrid, end)
	}
}

// tail keeps walking the grid after a piece has reached the end of the text,
// while the window after the current one still starts before n. Pieces only
// come out of here when overlap exceeds stride; each is a suffix of the text
// no longer than the chunk size, which keeps the count within one of
// ceil(n/stride).
func (c *Chunker) tail(pieces []Piece, runes []rune, i, stride int) []Piece {
	n := len(runes)
	for ; (i+1)*stride < n; i++ {
		lo := max(i*stride, pieces[len(pieces)-1].StartChar+1)
		if lo >= n {
			break
		}
		pieces = append(pieces, c.piece(i, runes, wordStart(runes, lo, n), n))
	}
	return pieces
}

func (c *Chunker) piece(idx int, runes []rune, start, end int) Piece {
	content := string(runes[start:end])
	return Piece{
		Index:      idx,
		Content:    content,
		StartChar:  start,
		EndChar:    end,
		TokenCount: ApproxTokens(content),
	}
}

// cutPoint picks an exclusive end in [lo, hi]: the latest paragraph break,
// then sentence end, then whitespace, falling back to a hard cut at hi.
func cutPoint(runes []rune, lo, hi int) int {
	if lo >= hi {
		return hi
	}
	for _, at := range []func([]rune, int) bool{afterParagraph, afterSentence, afterSpace} {
		for p := hi; p >= lo; p-- {
			if at(runes, p) {
				return p
			}
		}
	}
	return hi
}

func afterParagraph(r []rune, p int) bool {
	return p >= 2 && r[p-1] == '\n' && r[p-2] == '\n'
}

func afterSentence(r []rune, p int) bool {
	if p < 2 || !unicode.IsSpace(r[p-1]) {
		return false
	}
	switch r[p-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

func afterSpace(r []rune, p int) bool {
	return p >= 1 && unicode.IsSpace(r[p-1])
}

// wordStart returns the first offset in [lo, hi] that begins a word, or lo.
func wordStart(runes []rune, lo, hi int) int {
	for p := lo; p <= hi && p < len(runes); p++ {
		if p == 0 || (unicode.IsSpace(runes[p-1]) && !unicode.IsSpace(runes[p])) {
			return p
		}
	}
	return lo
}

// Rebuild stitches pieces back into the text they were cut from, dropping the overlapping prefix of each piece.
func Rebuild(pieces []Piece) string {
	var out []rune
	end := 0
	for _, p := range pieces {
		r := []rune(p.Content)
		if skip := end - p.StartChar; skip > 0 {
			if skip >= len(r) {
				continue
			}
			r = r[skip:]
		}
		out = append(out, r...)
		if p.EndChar > end {
			end = p.EndChar
		}
	}
	return string(out)
}

// ApproxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func ApproxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
