// Package schema is the per-party column catalog: parties, typed columns,
// ordered schemas, typed scalar values, and the registry that resolves a
// column name to its owning party across a vertical table.
//
// Schemas are immutable values. Column order is significant and defines the
// positional output order of every transformation.
package schema

import (
	"fmt"
	"strings"
)

// Party identifies a participant owning a disjoint slice of columns.
type Party string

// DType is the logical column type.
type DType string

const (
	Int32   DType = "int32"
	Int64   DType = "int64"
	Float32 DType = "float32"
	Float64 DType = "float64"
	Str     DType = "str"
	Bool    DType = "bool"
)

// DTypes lists every supported type.
var DTypes = []DType{Int32, Int64, Float32, Float64, Str, Bool}

// Family groups types that convert into each other without coercion.
type Family int

const (
	FamilyInvalid Family = iota
	FamilyInt
	FamilyFloat
	FamilyString
	FamilyBool
)

func (f Family) String() string {
	switch f {
	case FamilyInt:
		return "int"
	case FamilyFloat:
		return "float"
	case FamilyString:
		return "string"
	case FamilyBool:
		return "bool"
	default:
		return "invalid"
	}
}

// Family returns the conversion family of t.
func (t DType) Family() Family {
	switch t {
	case Int32, Int64:
		return FamilyInt
	case Float32, Float64:
		return FamilyFloat
	case Str:
		return FamilyString
	case Bool:
		return FamilyBool
	default:
		return FamilyInvalid
	}
}

// Valid reports whether t is a supported type.
func (t DType) Valid() bool {
	return t.Family() != FamilyInvalid
}

// ParseDType parses a type name. "string" and "object" are accepted as
// aliases of str.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "int32":
		return Int32, nil
	case "int64", "int":
		return Int64, nil
	case "float32":
		return Float32, nil
	case "float64", "float":
		return Float64, nil
	case "str", "string", "object":
		return Str, nil
	case "bool":
		return Bool, nil
	default:
		return "", fmt.Errorf("unsupported dtype %q", s)
	}
}

// Role classifies a column inside a party's table.
type Role string

const (
	RoleID      Role = "id"
	RoleFeature Role = "feature"
	RoleLabel   Role = "label"
)

// ParseRole parses a role name; empty means feature.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "", RoleFeature:
		return RoleFeature, nil
	case RoleID:
		return RoleID, nil
	case RoleLabel:
		return RoleLabel, nil
	default:
		return "", fmt.Errorf("unsupported role %q", s)
	}
}

// Column describes one column of a party's partition.
type Column struct {
	Name  string `json:"name" yaml:"name"`
	Type  DType  `json:"type" yaml:"type"`
	Owner Party  `json:"owner" yaml:"owner"`
	Role  Role   `json:"role" yaml:"role"`
}

func (c Column) String() string {
	return fmt.Sprintf("%s:%s", c.Name, c.Type)
}
