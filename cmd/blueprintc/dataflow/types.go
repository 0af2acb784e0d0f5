package dataflow

import (
	"fmt"
	"strings"

	blueprint "github.com/mxkacsa/blueprint"
)

var intTypes = map[string]bool{
	"int": true, "int8": true, "int16": true, "int32": true, "int64": true,
	"uint": true, "uint8": true, "uint16": true, "uint32": true, "uint64": true,
	"byte": true, "rune": true,
}

var floatTypes = map[string]bool{"float32": true, "float64": true}

// normalizeType canonicalizes spelling differences that denote the same type.
func normalizeType(t string) string {
	t = strings.Join(strings.Fields(t), "")
	if t == "interface{}" {
		return "any"
	}
	return t
}

// Compatible reports whether a value of type src may feed an input of type
// dst. Convert is set when the types differ by numeric widening (any integer
// kind to int64 or float64, float32 to float64) and the value must be wrapped
// in a conversion to dst.
func Compatible(src, dst string) (ok, convert bool) {
	src, dst = normalizeType(src), normalizeType(dst)
	switch {
	case src == dst:
		return true, false
	case dst == "any", src == "any":
		return true, false
	case intTypes[src] && (dst == "int64" || dst == "float64"):
		return true, true
	case src == "float32" && dst == "float64":
		return true, true
	}
	return false, false
}

// LiteralCompatible reports whether a property literal can be written where
// a dst value is expected. Go constants are untyped, so an integral Number
// fits any numeric type.
func LiteralCompatible(v blueprint.PropertyValue, dst string) bool {
	dst = normalizeType(dst)
	if dst == "any" {
		return true
	}
	switch v.Kind {
	case blueprint.PropString:
		return dst == "string"
	case blueprint.PropNumber:
		if floatTypes[dst] {
			return true
		}
		return intTypes[dst] && v.GoType() == "int64"
	case blueprint.PropBoolean:
		return dst == "bool"
	case blueprint.PropVector2, blueprint.PropVector3, blueprint.PropColor:
		return dst == normalizeType(v.GoType())
	}
	return false
}

// IsNumeric reports whether t is a built-in numeric type.
func IsNumeric(t string) bool {
	t = normalizeType(t)
	return intTypes[t] || floatTypes[t]
}

func literalName(v blueprint.PropertyValue) string {
	return fmt.Sprintf("%s(%s)", v.Kind, v.GoType())
}
