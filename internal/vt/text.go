package vt

import "strings"

// Text renders the current grid as plain text for REST (§4.H text()):
// trailing spaces on each line are trimmed, but internal spacing and row
// structure is preserved, one line per grid row joined by "\n".
func (e *Emulator) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	var b strings.Builder
	for y, row := range e.grid {
		if y > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(rowText(row))
	}
	return b.String()
}

func rowText(row Row) string {
	var b strings.Builder
	for _, cell := range row {
		switch cell.Kind {
		case CharContinuation:
			continue
		case CharSpace:
			b.WriteByte(' ')
		default:
			b.WriteRune(cell.R)
		}
	}
	return strings.TrimRight(b.String(), " ")
}
