package mysql

// StreamingType marks whether a Result was built by the streaming or the buffered
// resultset reader.
type StreamingType uint8

const (
	StreamingNone StreamingType = iota
	StreamingSelect
)

// Resultset holds the decoded columns and rows of a text-protocol query response.
type Resultset struct {
	Fields     []*Field
	FieldNames map[string]int
	Values     [][]FieldValue
	RowDatas   []RowData

	// RawPkg accumulates the raw column/row packets read for this resultset; readers
	// reuse its backing array across calls via ReadPacketReuseMem.
	RawPkg []byte
}

// NewResultset allocates a Resultset sized for fieldCount columns.
func NewResultset(fieldCount int) *Resultset {
	return &Resultset{
		Fields:     make([]*Field, fieldCount),
		FieldNames: make(map[string]int, fieldCount),
	}
}

// Reset clears a Resultset for reuse with a new fieldCount, keeping its backing arrays
// where capacity allows.
func (r *Resultset) Reset(fieldCount int) {
	if cap(r.Fields) >= fieldCount {
		r.Fields = r.Fields[:fieldCount]
		for i := range r.Fields {
			r.Fields[i] = nil
		}
	} else {
		r.Fields = make([]*Field, fieldCount)
	}

	for k := range r.FieldNames {
		delete(r.FieldNames, k)
	}

	r.Values = r.Values[:0]
	r.RowDatas = r.RowDatas[:0]
	r.RawPkg = r.RawPkg[:0]
}

// GetValue returns the decoded value of row/column, or an error if out of range.
func (r *Resultset) GetValue(row, column int) (interface{}, error) {
	if row < 0 || row >= len(r.Values) {
		return nil, ErrMalformPacket
	}
	if column < 0 || column >= len(r.Values[row]) {
		return nil, ErrMalformPacket
	}
	return r.Values[row][column].Value(), nil
}

// Result is what the query executor returns for any statement: an OK-packet summary
// plus, for SELECT-shaped statements, the decoded Resultset.
type Result struct {
	Status       uint16
	Warnings     uint16
	AffectedRows uint64
	InsertId     uint64

	*Resultset

	Streaming     StreamingType
	StreamingDone bool
}

// NewResultReserveResultset allocates a Result with its embedded Resultset sized for
// fieldCount columns; used whether or not the statement turns out to have one (an
// OK-only statement just never has its Fields populated).
func NewResultReserveResultset(fieldCount int) *Result {
	return &Result{Resultset: NewResultset(fieldCount)}
}
