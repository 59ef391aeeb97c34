// Package sema defines the analyzed-program contract between the semantic
// pass and the code generator: the symbol table, type registry and the
// span-keyed side tables the backend reads instead of re-analyzing the tree.
package sema

import "fmt"

// TypeKind discriminates Type.
type TypeKind int

const (
	TypeVoid TypeKind = iota
	TypeU8
	TypeI8
	TypeU16
	TypeI16
	TypeBool
	TypeB8  // 8-bit BCD
	TypeB16 // 16-bit BCD
	TypeString
	TypeArray
	TypeStruct
	TypeEnum
)

// Type is the resolved type of a node or symbol. Arrays carry their element
// type and length; structs and enums carry the registry name.
type Type struct {
	Kind TypeKind
	Elem *Type  // TypeArray
	Len  int    // TypeArray
	Name string // TypeStruct, TypeEnum
}

func U8() Type     { return Type{Kind: TypeU8} }
func I8() Type     { return Type{Kind: TypeI8} }
func U16() Type    { return Type{Kind: TypeU16} }
func I16() Type    { return Type{Kind: TypeI16} }
func B8() Type     { return Type{Kind: TypeB8} }
func B16() Type    { return Type{Kind: TypeB16} }
func Bool() Type   { return Type{Kind: TypeBool} }
func Void() Type   { return Type{Kind: TypeVoid} }
func String() Type { return Type{Kind: TypeString} }

func ArrayOf(elem Type, n int) Type { return Type{Kind: TypeArray, Elem: &elem, Len: n} }
func StructOf(name string) Type     { return Type{Kind: TypeStruct, Name: name} }
func EnumOf(name string) Type       { return Type{Kind: TypeEnum, Name: name} }

// Is16Bit reports whether values of this type occupy two bytes in a
// register pair (low in A, high in Y).
func (t Type) Is16Bit() bool {
	return t.Kind == TypeU16 || t.Kind == TypeI16 || t.Kind == TypeB16
}

// IsSigned reports whether the type uses two's-complement interpretation.
func (t Type) IsSigned() bool {
	return t.Kind == TypeI8 || t.Kind == TypeI16
}

// IsBCD reports whether arithmetic on the type runs in decimal mode.
func (t Type) IsBCD() bool {
	return t.Kind == TypeB8 || t.Kind == TypeB16
}

// IsByRef reports whether expressions of this type evaluate to an address
// (low byte in A, high byte in X) rather than to the value itself.
func (t Type) IsByRef() bool {
	switch t.Kind {
	case TypeString, TypeArray, TypeStruct, TypeEnum:
		return true
	}
	return false
}

func (t Type) String() string {
	switch t.Kind {
	case TypeVoid:
		return "void"
	case TypeU8:
		return "u8"
	case TypeI8:
		return "i8"
	case TypeU16:
		return "u16"
	case TypeI16:
		return "i16"
	case TypeBool:
		return "bool"
	case TypeB8:
		return "b8"
	case TypeB16:
		return "b16"
	case TypeString:
		return "string"
	case TypeArray:
		return fmt.Sprintf("[%s; %d]", t.Elem, t.Len)
	case TypeStruct, TypeEnum:
		return t.Name
	}
	return "?"
}

// StructField is one field of a struct layout.
type StructField struct {
	Name   string
	Type   Type
	Offset int
}

// StructDef is the memory layout of a struct: fields at fixed offsets,
// packed in declaration order.
type StructDef struct {
	Name   string
	Fields []StructField
	Size   int
}

// Field returns the named field, or nil.
func (s *StructDef) Field(name string) *StructField {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// EnumVariant is one variant of an enum: a tag byte plus an optional
// payload laid out after the tag.
type EnumVariant struct {
	Name    string
	Tag     int
	Payload []Type
	Offsets []int // payload field offsets from the value start, tag included
}

// EnumDef is the memory layout of an enum: one tag byte followed by space
// for the largest payload.
type EnumDef struct {
	Name     string
	Variants []EnumVariant
	Size     int
}

// Variant returns the named variant, or nil.
func (e *EnumDef) Variant(name string) *EnumVariant {
	for i := range e.Variants {
		if e.Variants[i].Name == name {
			return &e.Variants[i]
		}
	}
	return nil
}

// TypeRegistry holds struct and enum layouts by name.
type TypeRegistry struct {
	Structs map[string]*StructDef
	Enums   map[string]*EnumDef
}

func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		Structs: make(map[string]*StructDef),
		Enums:   make(map[string]*EnumDef),
	}
}

// AddStruct computes field offsets and registers the layout.
func (r *TypeRegistry) AddStruct(name string, fields []StructField) *StructDef {
	off := 0
	for i := range fields {
		fields[i].Offset = off
		off += r.SizeOf(fields[i].Type)
	}
	def := &StructDef{Name: name, Fields: fields, Size: off}
	r.Structs[name] = def
	return def
}

// AddEnum computes payload offsets and registers the layout. Tags are
// assigned in declaration order.
func (r *TypeRegistry) AddEnum(name string, variants []EnumVariant) *EnumDef {
	size := 1
	for i := range variants {
		variants[i].Tag = i
		off := 1
		variants[i].Offsets = variants[i].Offsets[:0]
		for _, p := range variants[i].Payload {
			variants[i].Offsets = append(variants[i].Offsets, off)
			off += r.SizeOf(p)
		}
		if off > size {
			size = off
		}
	}
	def := &EnumDef{Name: name, Variants: variants, Size: size}
	r.Enums[name] = def
	return def
}

// SizeOf returns the storage size of a type in bytes. Strings are stored
// as a 2-byte pointer; the pointed-to data carries a 2-byte length prefix.
func (r *TypeRegistry) SizeOf(t Type) int {
	switch t.Kind {
	case TypeVoid:
		return 0
	case TypeU8, TypeI8, TypeBool, TypeB8:
		return 1
	case TypeU16, TypeI16, TypeB16, TypeString:
		return 2
	case TypeArray:
		return t.Len * r.SizeOf(*t.Elem)
	case TypeStruct:
		if def, ok := r.Structs[t.Name]; ok {
			return def.Size
		}
	case TypeEnum:
		if def, ok := r.Enums[t.Name]; ok {
			return def.Size
		}
	}
	return 0
}
