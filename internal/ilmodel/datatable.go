package ilmodel

// DataEntry is one named, typed slot within a contiguous data table (the
// globals table or the constants table).
type DataEntry struct {
	Name   NameIndex
	Type   TypeIndex
	Offset int64
}

// DataTable is a sequence of data entries backed by one contiguous byte
// buffer, used for both the globals table and the constants table.
type DataTable struct {
	Entries []DataEntry
	Bytes   []byte
}

// Append reserves len(init) bytes at the end of the table's byte buffer for
// a new entry and returns its byte offset.
func (t *DataTable) Append(name NameIndex, typ TypeIndex, init []byte) int64 {
	offset := int64(len(t.Bytes))
	t.Entries = append(t.Entries, DataEntry{Name: name, Type: typ, Offset: offset})
	t.Bytes = append(t.Bytes, init...)
	return offset
}

// ByName returns the index of the entry with the given name, or -1.
func (t *DataTable) ByName(name NameIndex) int {
	for i := range t.Entries {
		if t.Entries[i].Name == name {
			return i
		}
	}
	return -1
}
