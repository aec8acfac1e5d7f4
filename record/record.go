package record

// Record is an unordered-by-contract, ordered-by-implementation mapping
// from field name to Value. The order returned by Fields is the order
// fields were first Set. The codec does not serialize in this order: it
// sorts keys, which is what makes re-serializing an unchanged record
// produce identical bytes (the in-place update fast path in package heap
// depends on this).
type Record struct {
	order  []string
	values map[string]Value
}

// New returns an empty record.
func New() *Record {
	return &Record{values: make(map[string]Value)}
}

// FromMap builds a record from a loosely-typed map, as produced by an
// INSERT command's Data or an UPDATE command's Updates. Map iteration order
// in Go is randomized, so fields are ordered by sorting the keys -
// the ordering itself is arbitrary but it is the same arbitrary order every
// time the same field set is built from a map, which is all stability
// requires.
func FromMap(m map[string]any) *Record {
	r := New()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	for _, k := range keys {
		r.Set(k, FromAny(m[k]))
	}
	return r
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// Set assigns field to v, appending field to the order if it is new.
func (r *Record) Set(field string, v Value) {
	if _, ok := r.values[field]; !ok {
		r.order = append(r.order, field)
	}
	r.values[field] = v
}

// Get returns the value of field and whether it is present at all.
func (r *Record) Get(field string) (Value, bool) {
	v, ok := r.values[field]
	return v, ok
}

// GetOr returns the value of field, or Null if absent.
func (r *Record) GetOr(field string) Value {
	v, ok := r.values[field]
	if !ok {
		return Null()
	}
	return v
}

// Fields returns field names in stable insertion order.
func (r *Record) Fields() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Len reports the number of fields.
func (r *Record) Len() int { return len(r.order) }

// Clone returns a deep copy; Value is a plain struct so copying the map is
// sufficient.
func (r *Record) Clone() *Record {
	c := &Record{
		order:  make([]string, len(r.order)),
		values: make(map[string]Value, len(r.values)),
	}
	copy(c.order, r.order)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// ToMap converts to the loosely-typed representation handed to the event
// sink and returned from SELECT.
func (r *Record) ToMap() map[string]any {
	out := make(map[string]any, len(r.values))
	for _, f := range r.order {
		out[f] = r.values[f].Any()
	}
	return out
}

// Equal is value-based structural equality: same field set, same values
// (with the same numeric-coercion rules as Value.Equal). Used by DISTINCT
// and by index bucket entry removal ("deep equality on record identity").
func (r *Record) Equal(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	if len(r.values) != len(o.values) {
		return false
	}
	for f, v := range r.values {
		ov, ok := o.values[f]
		if !ok || !v.Equal(ov) {
			return false
		}
	}
	return true
}

// Merge returns a new record containing every field of r followed by every
// field of o not already present in r, with o's fields overwriting r's on
// conflict. Joins use it to compose a joined row; fields keep their bare
// names and no table-qualified aliases are added.
func (r *Record) Merge(o *Record) *Record {
	out := r.Clone()
	for _, f := range o.order {
		out.Set(f, o.values[f])
	}
	return out
}
