package inline

import (
	"go/ast"
	"reflect"
)

var (
	objectType = reflect.TypeOf((*ast.Object)(nil))
	scopeType  = reflect.TypeOf((*ast.Scope)(nil))
)

// CloneExpr deep-copies an expression so the same value can be spliced into
// several places without sharing nodes.
func CloneExpr(e ast.Expr) ast.Expr {
	if e == nil {
		return nil
	}
	return cloneNode(e).(ast.Expr)
}

// CloneStmts deep-copies a statement list.
func CloneStmts(stmts []ast.Stmt) []ast.Stmt {
	if stmts == nil {
		return nil
	}
	out := make([]ast.Stmt, len(stmts))
	for i, s := range stmts {
		out[i] = cloneNode(s).(ast.Stmt)
	}
	return out
}

// CloneFunc deep-copies a function declaration. Cached templates are cloned
// before every rewrite.
func CloneFunc(fn *ast.FuncDecl) *ast.FuncDecl {
	if fn == nil {
		return nil
	}
	return cloneNode(fn).(*ast.FuncDecl)
}

func cloneNode(n ast.Node) ast.Node {
	return cloneValue(reflect.ValueOf(n)).Interface().(ast.Node)
}

// cloneValue copies pointers, slices and interfaces recursively. Resolver
// objects and scopes are dropped.
func cloneValue(v reflect.Value) reflect.Value {
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return v
		}
		if v.Type() == objectType || v.Type() == scopeType {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Elem().Type())
		out.Elem().Set(cloneValue(v.Elem()))
		return out
	case reflect.Interface:
		if v.IsNil() {
			return v
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(cloneValue(v.Elem()))
		return out
	case reflect.Slice:
		if v.IsNil() {
			return v
		}
		out := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			out.Index(i).Set(cloneValue(v.Index(i)))
		}
		return out
	case reflect.Struct:
		out := reflect.New(v.Type()).Elem()
		for i := 0; i < v.NumField(); i++ {
			if !out.Field(i).CanSet() {
				continue
			}
			out.Field(i).Set(cloneValue(v.Field(i)))
		}
		return out
	}
	return v
}
