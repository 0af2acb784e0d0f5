package blueprint

import (
	"encoding/json"
	"fmt"
	"go/ast"
	"go/token"
	"math"
	"strconv"

	"gopkg.in/yaml.v3"
)

// PropertyKind tags the variant held by a PropertyValue.
type PropertyKind uint8

const (
	PropString PropertyKind = iota + 1
	PropNumber
	PropBoolean
	PropVector2
	PropVector3
	PropColor
)

var propKindNames = map[PropertyKind]string{
	PropString:  "String",
	PropNumber:  "Number",
	PropBoolean: "Boolean",
	PropVector2: "Vector2",
	PropVector3: "Vector3",
	PropColor:   "Color",
}

func (k PropertyKind) String() string {
	if s, ok := propKindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("PropertyKind(%d)", k)
}

// arity is the number of float components for vector-like kinds.
func (k PropertyKind) arity() int {
	switch k {
	case PropVector2:
		return 2
	case PropVector3:
		return 3
	case PropColor:
		return 4
	}
	return 0
}

// PropertyValue is a literal supplied for an unconnected input pin.
//
// On the wire it uses the editor's externally tagged form
// ({"String": "hi"}, {"Vector2": [1, 2]}); bare scalars are accepted on input.
type PropertyValue struct {
	Kind   PropertyKind
	Str    string
	Num    float64
	Bool   bool
	Floats []float64
}

// StringValue builds a String property.
func StringValue(s string) PropertyValue { return PropertyValue{Kind: PropString, Str: s} }

// NumberValue builds a Number property.
func NumberValue(n float64) PropertyValue { return PropertyValue{Kind: PropNumber, Num: n} }

// BoolValue builds a Boolean property.
func BoolValue(b bool) PropertyValue { return PropertyValue{Kind: PropBoolean, Bool: b} }

// Vector2Value builds a Vector2 property.
func Vector2Value(x, y float64) PropertyValue {
	return PropertyValue{Kind: PropVector2, Floats: []float64{x, y}}
}

// Vector3Value builds a Vector3 property.
func Vector3Value(x, y, z float64) PropertyValue {
	return PropertyValue{Kind: PropVector3, Floats: []float64{x, y, z}}
}

// ColorValue builds an RGBA Color property.
func ColorValue(r, g, b, a float64) PropertyValue {
	return PropertyValue{Kind: PropColor, Floats: []float64{r, g, b, a}}
}

// GoType is the Go type a literal of this kind naturally has.
func (v PropertyValue) GoType() string {
	switch v.Kind {
	case PropString:
		return "string"
	case PropNumber:
		if isIntegral(v.Num) {
			return "int64"
		}
		return "float64"
	case PropBoolean:
		return "bool"
	case PropVector2, PropVector3, PropColor:
		return fmt.Sprintf("[%d]float64", v.Kind.arity())
	}
	return "any"
}

// Expr renders the value as a Go expression.
func (v PropertyValue) Expr() ast.Expr {
	switch v.Kind {
	case PropString:
		return &ast.BasicLit{Kind: token.STRING, Value: strconv.Quote(v.Str)}
	case PropNumber:
		return numberLit(v.Num)
	case PropBoolean:
		return ast.NewIdent(strconv.FormatBool(v.Bool))
	case PropVector2, PropVector3, PropColor:
		elts := make([]ast.Expr, 0, len(v.Floats))
		for _, f := range v.Floats {
			elts = append(elts, floatLit(f))
		}
		return &ast.CompositeLit{
			Type: &ast.ArrayType{
				Len: &ast.BasicLit{Kind: token.INT, Value: strconv.Itoa(v.Kind.arity())},
				Elt: ast.NewIdent("float64"),
			},
			Elts: elts,
		}
	}
	return ast.NewIdent("nil")
}

func isIntegral(f float64) bool {
	return f == math.Trunc(f) && !math.IsInf(f, 0) && math.Abs(f) < 1<<53
}

func numberLit(f float64) ast.Expr {
	if isIntegral(f) {
		lit := &ast.BasicLit{Kind: token.INT, Value: strconv.FormatInt(int64(math.Abs(f)), 10)}
		if f < 0 {
			return &ast.UnaryExpr{Op: token.SUB, X: lit}
		}
		return lit
	}
	return floatLit(f)
}

func floatLit(f float64) ast.Expr {
	s := strconv.FormatFloat(math.Abs(f), 'g', -1, 64)
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		s += ".0"
	}
	lit := &ast.BasicLit{Kind: token.FLOAT, Value: s}
	if math.Signbit(f) && f != 0 {
		return &ast.UnaryExpr{Op: token.SUB, X: lit}
	}
	return lit
}

// tagged converts v into the externally tagged wire form.
func (v PropertyValue) tagged() (map[string]any, error) {
	name, ok := propKindNames[v.Kind]
	if !ok {
		return nil, fmt.Errorf("invalid property kind %d", v.Kind)
	}
	var payload any
	switch v.Kind {
	case PropString:
		payload = v.Str
	case PropNumber:
		payload = v.Num
	case PropBoolean:
		payload = v.Bool
	default:
		payload = v.Floats
	}
	return map[string]any{name: payload}, nil
}

// fromAny decodes the generic form produced by encoding/json or yaml.v3.
func (v *PropertyValue) fromAny(raw any) error {
	switch x := raw.(type) {
	case string:
		*v = StringValue(x)
		return nil
	case bool:
		*v = BoolValue(x)
		return nil
	case float64:
		*v = NumberValue(x)
		return nil
	case int:
		*v = NumberValue(float64(x))
		return nil
	case int64:
		*v = NumberValue(float64(x))
		return nil
	case map[string]any:
		if len(x) != 1 {
			return fmt.Errorf("property value must have exactly one variant, got %d", len(x))
		}
		for name, payload := range x {
			return v.fromVariant(name, payload)
		}
	}
	return fmt.Errorf("unsupported property value %v (%T)", raw, raw)
}

func (v *PropertyValue) fromVariant(name string, payload any) error {
	for kind, n := range propKindNames {
		if n != name {
			continue
		}
		switch kind {
		case PropString:
			s, ok := payload.(string)
			if !ok {
				return fmt.Errorf("String property: want string, got %T", payload)
			}
			*v = StringValue(s)
		case PropNumber:
			f, ok := toFloat(payload)
			if !ok {
				return fmt.Errorf("Number property: want number, got %T", payload)
			}
			*v = NumberValue(f)
		case PropBoolean:
			b, ok := payload.(bool)
			if !ok {
				return fmt.Errorf("Boolean property: want bool, got %T", payload)
			}
			*v = BoolValue(b)
		default:
			items, ok := payload.([]any)
			if !ok || len(items) != kind.arity() {
				return fmt.Errorf("%s property: want %d numbers", name, kind.arity())
			}
			floats := make([]float64, len(items))
			for i, it := range items {
				f, ok := toFloat(it)
				if !ok {
					return fmt.Errorf("%s property: component %d is %T", name, i, it)
				}
				floats[i] = f
			}
			*v = PropertyValue{Kind: kind, Floats: floats}
		}
		return nil
	}
	return fmt.Errorf("unknown property variant %q", name)
}

func toFloat(x any) (float64, bool) {
	switch n := x.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// MarshalJSON implements json.Marshaler.
func (v PropertyValue) MarshalJSON() ([]byte, error) {
	m, err := v.tagged()
	if err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *PropertyValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return v.fromAny(raw)
}

// MarshalYAML implements yaml.Marshaler.
func (v PropertyValue) MarshalYAML() (any, error) {
	return v.tagged()
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *PropertyValue) UnmarshalYAML(node *yaml.Node) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	return v.fromAny(raw)
}
