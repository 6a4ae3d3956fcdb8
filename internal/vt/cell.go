package vt

// ColorKind distinguishes a cell color's representation.
type ColorKind uint8

const (
	ColorNone ColorKind = iota
	ColorPalette
	ColorRGB
)

// Color is either unset, a 256-color palette index, or 24-bit RGB.
type Color struct {
	Kind    ColorKind
	Palette uint8
	R, G, B uint8
}

// CharKind classifies what, if anything, occupies a cell's character slot.
type CharKind uint8

const (
	CharSpace CharKind = iota
	CharASCII
	CharUnicode
	CharContinuation // trailing half of a wide character
)

// Cell is one grid position: a character plus its visual attributes.
type Cell struct {
	Kind CharKind
	R    rune // valid when Kind is CharASCII or CharUnicode

	FG, BG Color

	Bold, Italic, Underline, Inverse bool
}

// IsDefault reports whether the cell is a plain space with no attributes —
// the canonical "empty" cell used by the row run-length encoding.
func (c Cell) IsDefault() bool {
	return c.Kind == CharSpace &&
		c.FG.Kind == ColorNone && c.BG.Kind == ColorNone &&
		!c.Bold && !c.Italic && !c.Underline && !c.Inverse
}

// blankCell is the zero value, explicit for readability at call sites.
var blankCell = Cell{}
