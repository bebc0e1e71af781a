package model

import (
	"bytes"
	"encoding/json"
)

type fieldState uint8

const (
	fieldAbsent fieldState = iota
	fieldNull
	fieldValue
)

// Field is an optional patch value that distinguishes "not provided" from
// "explicitly cleared" from "set to a value". The zero Field is absent.
type Field[T any] struct {
	state fieldState
	value T
}

// Set returns a field carrying v.
func Set[T any](v T) Field[T] {
	return Field[T]{state: fieldValue, value: v}
}

// Null returns a field that explicitly clears the target.
func Null[T any]() Field[T] {
	return Field[T]{state: fieldNull}
}

// Present reports whether the field was provided at all, as a value or a clear.
func (f Field[T]) Present() bool {
	return f.state != fieldAbsent
}

// IsNull reports whether the field explicitly clears the target.
func (f Field[T]) IsNull() bool {
	return f.state == fieldNull
}

// Value returns the carried value and true, or the zero value and false when
// the field is absent or null.
func (f Field[T]) Value() (T, bool) {
	return f.value, f.state == fieldValue
}

// FromPtr maps nil to Null and non-nil to Set.
func FromPtr[T any](p *T) Field[T] {
	if p == nil {
		return Null[T]()
	}
	return Set(*p)
}

// Ptr returns a pointer to the value, or nil when the field is absent or null.
func (f Field[T]) Ptr() *T {
	if f.state != fieldValue {
		return nil
	}
	v := f.value
	return &v
}

// UnmarshalJSON makes a JSON null explicit. A key missing from the document
// never reaches this method and leaves the field absent.
func (f *Field[T]) UnmarshalJSON(b []byte) error {
	if string(bytes.TrimSpace(b)) == "null" {
		*f = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = Set(v)
	return nil
}
