package codec

import (
	"encoding/binary"
	"math"

	"boxdb/pkg/boxerr"
)

// Writer appends values to an expandable byte buffer, typed and tagged the
// same way Reader expects to find them. Both sides carry a TypeRegistry so
// user-defined values can be dispatched without either side knowing the
// concrete Go type ahead of time.
type Writer struct {
	buf      []byte
	registry *TypeRegistry
}

// NewWriter creates a Writer backed by an empty buffer.
func NewWriter(registry *TypeRegistry) *Writer {
	return &Writer{registry: registry}
}

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len reports how many bytes have been written so far.
func (w *Writer) Len() int { return len(w.buf) }

func (w *Writer) WriteByte(b byte) { w.buf = append(w.buf, b) }

func (w *Writer) WriteWord(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteInt32(v int32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(v))
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

func (w *Writer) WriteDouble(v float64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], math.Float64bits(v))
	w.buf = append(w.buf, tmp[:]...)
}

// WriteInt stores an integer through the historical double round-trip: on
// disk every integer is an IEEE-754 float64, truncated back to an integer
// on read. This keeps binary compatibility with the format's origins even
// though the Go surface exposes int64.
func (w *Writer) WriteInt(v int64) {
	w.WriteDouble(float64(v))
}

func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}

// WriteString writes a u16-LE length prefix followed by UTF-8 bytes.
func (w *Writer) WriteString(s string) error {
	b := []byte(s)
	if len(b) > math.MaxUint16 {
		return boxerr.Wrap(boxerr.ErrUnsupportedOperation, "string exceeds 65535 bytes")
	}
	w.WriteWord(uint16(len(b)))
	w.buf = append(w.buf, b...)
	return nil
}

// WriteASCIIString writes a u16-LE length prefix followed by raw ASCII
// bytes. Frame keys do not go through it: internal/frame writes them with
// a one-byte length prefix of its own.
func (w *Writer) WriteASCIIString(s string) error {
	if len(s) > math.MaxUint16 {
		return boxerr.Wrap(boxerr.ErrUnsupportedOperation, "ascii string exceeds 65535 bytes")
	}
	w.WriteWord(uint16(len(s)))
	w.buf = append(w.buf, s...)
	return nil
}

func (w *Writer) WriteByteList(v []byte) error {
	if len(v) > math.MaxUint16 {
		return boxerr.Wrap(boxerr.ErrUnsupportedOperation, "byte list exceeds 65535 elements")
	}
	w.WriteWord(uint16(len(v)))
	w.buf = append(w.buf, v...)
	return nil
}

func (w *Writer) WriteIntList(v []int64) error {
	if len(v) > math.MaxUint16 {
		return boxerr.Wrap(boxerr.ErrUnsupportedOperation, "int list exceeds 65535 elements")
	}
	w.WriteWord(uint16(len(v)))
	for _, e := range v {
		w.WriteInt(e)
	}
	return nil
}

func (w *Writer) WriteDoubleList(v []float64) error {
	if len(v) > math.MaxUint16 {
		return boxerr.Wrap(boxerr.ErrUnsupportedOperation, "double list exceeds 65535 elements")
	}
	w.WriteWord(uint16(len(v)))
	for _, e := range v {
		w.WriteDouble(e)
	}
	return nil
}

func (w *Writer) WriteBoolList(v []bool) error {
	if len(v) > math.MaxUint16 {
		return boxerr.Wrap(boxerr.ErrUnsupportedOperation, "bool list exceeds 65535 elements")
	}
	w.WriteWord(uint16(len(v)))
	for _, e := range v {
		w.WriteBool(e)
	}
	return nil
}

func (w *Writer) WriteStringList(v []string) error {
	if len(v) > math.MaxUint16 {
		return boxerr.Wrap(boxerr.ErrUnsupportedOperation, "string list exceeds 65535 elements")
	}
	w.WriteWord(uint16(len(v)))
	for _, e := range v {
		if err := w.WriteString(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteList writes a heterogeneous list, dispatching each element through
// Write (tag + payload).
func (w *Writer) WriteList(v []any) error {
	if len(v) > math.MaxUint16 {
		return boxerr.Wrap(boxerr.ErrUnsupportedOperation, "list exceeds 65535 elements")
	}
	w.WriteWord(uint16(len(v)))
	for _, e := range v {
		if err := w.Write(e); err != nil {
			return err
		}
	}
	return nil
}

// WriteMap writes a string-keyed map, with each value dispatched through
// Write the same way a heterogeneous list element is.
func (w *Writer) WriteMap(v map[string]any) error {
	if len(v) > math.MaxUint16 {
		return boxerr.Wrap(boxerr.ErrUnsupportedOperation, "map exceeds 65535 entries")
	}
	w.WriteWord(uint16(len(v)))
	for k, e := range v {
		if err := w.WriteString(k); err != nil {
			return err
		}
		if err := w.Write(e); err != nil {
			return err
		}
	}
	return nil
}

// Write tags v with the matching built-in tag, or dispatches to a
// registered adapter for user-defined types, and writes the result.
func (w *Writer) Write(v any) error {
	switch val := v.(type) {
	case nil:
		w.WriteByte(byte(TagNull))
		return nil
	case int:
		w.WriteByte(byte(TagInt))
		w.WriteInt(int64(val))
		return nil
	case int32:
		w.WriteByte(byte(TagInt))
		w.WriteInt(int64(val))
		return nil
	case int64:
		w.WriteByte(byte(TagInt))
		w.WriteInt(val)
		return nil
	case uint32:
		w.WriteByte(byte(TagInt))
		w.WriteInt(int64(val))
		return nil
	case float64:
		w.WriteByte(byte(TagDouble))
		w.WriteDouble(val)
		return nil
	case bool:
		w.WriteByte(byte(TagBool))
		w.WriteBool(val)
		return nil
	case string:
		w.WriteByte(byte(TagString))
		return w.WriteString(val)
	case []byte:
		w.WriteByte(byte(TagByteList))
		return w.WriteByteList(val)
	case []int64:
		w.WriteByte(byte(TagIntList))
		return w.WriteIntList(val)
	case []float64:
		w.WriteByte(byte(TagDoubleList))
		return w.WriteDoubleList(val)
	case []bool:
		w.WriteByte(byte(TagBoolList))
		return w.WriteBoolList(val)
	case []string:
		w.WriteByte(byte(TagStringList))
		return w.WriteStringList(val)
	case []any:
		w.WriteByte(byte(TagList))
		return w.WriteList(val)
	case map[string]any:
		w.WriteByte(byte(TagMap))
		return w.WriteMap(val)
	default:
		if w.registry == nil {
			return boxerr.Wrap(boxerr.ErrUnknownType, "no registry configured for user type")
		}
		adapter, typeID, ok := w.registry.FindByValue(v)
		if !ok {
			return boxerr.Wrap(boxerr.ErrUnknownType, "no adapter registered for value")
		}
		w.WriteByte(typeID)
		return adapter.Write(w, v)
	}
}

// Reader views a caller-supplied slice with a cursor, decoding values in
// lock-step with Writer.
type Reader struct {
	buf      []byte
	offset   int
	registry *TypeRegistry
}

// NewReader wraps buf for sequential decoding starting at offset 0.
func NewReader(buf []byte, registry *TypeRegistry) *Reader {
	return &Reader{buf: buf, registry: registry}
}

// Offset returns the current cursor position.
func (r *Reader) Offset() int { return r.offset }

// Remaining reports how many unread bytes are left.
func (r *Reader) Remaining() int { return len(r.buf) - r.offset }

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return boxerr.Wrap(boxerr.ErrCorruptFrame, "short read")
	}
	return nil
}

func (r *Reader) ReadByte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.buf[r.offset]
	r.offset++
	return b, nil
}

func (r *Reader) ReadWord() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.buf[r.offset:])
	r.offset += 2
	return v, nil
}

func (r *Reader) ReadInt32() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(r.buf[r.offset:]))
	r.offset += 4
	return v, nil
}

func (r *Reader) ReadUint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.offset:])
	r.offset += 4
	return v, nil
}

func (r *Reader) ReadDouble() (float64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.buf[r.offset:]))
	r.offset += 8
	return v, nil
}

// ReadInt is ReadDouble().toInt(), preserving the historical tradeoff.
func (r *Reader) ReadInt() (int64, error) {
	v, err := r.ReadDouble()
	if err != nil {
		return 0, err
	}
	return int64(v), nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadWord()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.offset : r.offset+int(n)])
	r.offset += int(n)
	return s, nil
}

func (r *Reader) ReadASCIIString() (string, error) {
	return r.ReadString()
}

func (r *Reader) ReadByteList() ([]byte, error) {
	n, err := r.ReadWord()
	if err != nil {
		return nil, err
	}
	if err := r.need(int(n)); err != nil {
		return nil, err
	}
	v := make([]byte, n)
	copy(v, r.buf[r.offset:r.offset+int(n)])
	r.offset += int(n)
	return v, nil
}

func (r *Reader) ReadIntList() ([]int64, error) {
	n, err := r.ReadWord()
	if err != nil {
		return nil, err
	}
	v := make([]int64, n)
	for i := range v {
		e, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		v[i] = e
	}
	return v, nil
}

func (r *Reader) ReadDoubleList() ([]float64, error) {
	n, err := r.ReadWord()
	if err != nil {
		return nil, err
	}
	v := make([]float64, n)
	for i := range v {
		e, err := r.ReadDouble()
		if err != nil {
			return nil, err
		}
		v[i] = e
	}
	return v, nil
}

func (r *Reader) ReadBoolList() ([]bool, error) {
	n, err := r.ReadWord()
	if err != nil {
		return nil, err
	}
	v := make([]bool, n)
	for i := range v {
		e, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		v[i] = e
	}
	return v, nil
}

func (r *Reader) ReadStringList() ([]string, error) {
	n, err := r.ReadWord()
	if err != nil {
		return nil, err
	}
	v := make([]string, n)
	for i := range v {
		e, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		v[i] = e
	}
	return v, nil
}

func (r *Reader) ReadList() ([]any, error) {
	n, err := r.ReadWord()
	if err != nil {
		return nil, err
	}
	v := make([]any, n)
	for i := range v {
		e, err := r.Read()
		if err != nil {
			return nil, err
		}
		v[i] = e
	}
	return v, nil
}

func (r *Reader) ReadMap() (map[string]any, error) {
	n, err := r.ReadWord()
	if err != nil {
		return nil, err
	}
	v := make(map[string]any, n)
	for i := 0; i < int(n); i++ {
		k, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		e, err := r.Read()
		if err != nil {
			return nil, err
		}
		v[k] = e
	}
	return v, nil
}

// Read decodes a tagged value: a tag byte (unless tagHint is supplied) and
// its payload. Built-in tags are decoded inline; tags >= FirstUserTag are
// dispatched to the registry, failing with UnknownType when no adapter
// claims the tag.
func (r *Reader) Read(tagHint ...Tag) (any, error) {
	var tag Tag
	if len(tagHint) > 0 {
		tag = tagHint[0]
	} else {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		tag = Tag(b)
	}

	switch tag {
	case TagNull:
		return nil, nil
	case TagInt:
		return r.ReadInt()
	case TagDouble:
		return r.ReadDouble()
	case TagBool:
		return r.ReadBool()
	case TagString:
		return r.ReadString()
	case TagByteList:
		return r.ReadByteList()
	case TagIntList:
		return r.ReadIntList()
	case TagDoubleList:
		return r.ReadDoubleList()
	case TagBoolList:
		return r.ReadBoolList()
	case TagStringList:
		return r.ReadStringList()
	case TagList:
		return r.ReadList()
	case TagMap:
		return r.ReadMap()
	default:
		if byte(tag) < FirstUserTag {
			return nil, boxerr.Wrap(boxerr.ErrUnknownType, "reserved tag with no built-in meaning")
		}
		if r.registry == nil {
			return nil, boxerr.Wrap(boxerr.ErrUnknownType, "no registry configured")
		}
		adapter, ok := r.registry.Find(byte(tag))
		if !ok {
			return nil, boxerr.Wrap(boxerr.ErrUnknownType, "no adapter registered for tag")
		}
		return adapter.Read(r)
	}
}
