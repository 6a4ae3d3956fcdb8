package vt

// Row is one line of cells, exactly Cols wide.
type Row []Cell

func newRow(cols int) Row {
	row := make(Row, cols)
	for i := range row {
		row[i] = blankCell
	}
	return row
}

func (r Row) isEmpty() bool {
	for _, c := range r {
		if !c.IsDefault() {
			return false
		}
	}
	return true
}
