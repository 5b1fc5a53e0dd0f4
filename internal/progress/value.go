package progress

import (
	"encoding/json"
	"math"
)

// Value is the closed set of types a progress detail payload can carry.
// Scalar variants are stored in the document directly; composite variants
// are serialized to a JSON string so the consuming front end always
// receives valid JSON, never a stringified native value.
type Value interface {
	isValue()
}

type (
	// String is a scalar text detail
	String string
	// Int is a scalar integer detail
	Int int64
	// Float is a scalar floating-point detail; NaN and infinities encode as 0.0
	Float float64
	// Bool is a scalar boolean detail
	Bool bool
	// Floats is a numeric vector detail; NaN and infinities encode as 0.0
	Floats []float64
	// Ints is an integer vector detail
	Ints []int64
	// Strings is a text list detail
	Strings []string
	// List is a heterogeneous sequence detail
	List []Value
	// Map is a nested mapping detail
	Map map[string]Value
)

func (String) isValue()  {}
func (Int) isValue()     {}
func (Float) isValue()   {}
func (Bool) isValue()    {}
func (Floats) isValue()  {}
func (Ints) isValue()    {}
func (Strings) isValue() {}
func (List) isValue()    {}
func (Map) isValue()     {}

// sanitizeFloat folds values encoding/json refuses (NaN, ±Inf) to 0.0
func sanitizeFloat(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0.0
	}
	return f
}

func (f Float) MarshalJSON() ([]byte, error) {
	return json.Marshal(sanitizeFloat(float64(f)))
}

func (f Floats) MarshalJSON() ([]byte, error) {
	clean := make([]float64, len(f))
	for i, v := range f {
		clean[i] = sanitizeFloat(v)
	}
	return json.Marshal(clean)
}
