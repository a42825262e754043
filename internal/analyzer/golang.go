package analyzer

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strings"
)

// extractGo walks a real AST. Parse errors yield an empty result: the diff
// window routinely contains half-written code and that must not abort a run.
func extractGo(source []byte) FilePatterns {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "", source, 0)
	if err != nil {
		return FilePatterns{}
	}

	var out FilePatterns

	for _, imp := range file.Imports {
		module := strings.Trim(imp.Path.Value, `"`)
		shape := ImportShape{Module: module}
		if imp.Name != nil {
			shape.Names = []string{imp.Name.Name}
		}
		out.Imports = append(out.Imports, shape)
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch node := n.(type) {
		case *ast.FuncDecl:
			out.Functions = append(out.Functions, goFunc(node))
		case *ast.TypeSpec:
			if shape, ok := goType(node); ok {
				out.Types = append(out.Types, shape)
			}
		case *ast.CallExpr:
			if shape, ok := goErrorHandler(node); ok {
				out.ErrorHandlers = append(out.ErrorHandlers, shape)
			}
		}
		return true
	})
	return out
}

func goFunc(fn *ast.FuncDecl) FunctionShape {
	shape := FunctionShape{Name: fn.Name.Name, Kind: "function", Params: []string{}}

	if fn.Recv != nil && len(fn.Recv.List) > 0 {
		shape.Kind = "method"
		shape.Receiver = typeText(fn.Recv.List[0].Type)
	}
	for _, field := range fn.Type.Params.List {
		if len(field.Names) == 0 {
			shape.Params = append(shape.Params, typeText(field.Type))
			continue
		}
		for _, name := range field.Names {
			shape.Params = append(shape.Params, name.Name)
		}
	}
	if fn.Type.Results != nil {
		for _, field := range fn.Type.Results.List {
			shape.Results = append(shape.Results, typeText(field.Type))
		}
	}
	return shape
}

// goType reports struct and interface declarations; embedded fields count as
// bases, the closest Go analog to inheritance.
func goType(spec *ast.TypeSpec) (TypeShape, bool) {
	shape := TypeShape{Name: spec.Name.Name}
	switch t := spec.Type.(type) {
	case *ast.StructType:
		for _, field := range t.Fields.List {
			if len(field.Names) == 0 {
				shape.Bases = append(shape.Bases, typeText(field.Type))
			}
		}
	case *ast.InterfaceType:
		for _, field := range t.Methods.List {
			if len(field.Names) == 0 {
				shape.Bases = append(shape.Bases, typeText(field.Type))
			}
		}
	default:
		return TypeShape{}, false
	}
	return shape, true
}

// goErrorHandler treats errors.Is/errors.As targets as caught types and a
// bare recover() as a broad catch.
func goErrorHandler(call *ast.CallExpr) (ErrorHandlerShape, bool) {
	switch fn := call.Fun.(type) {
	case *ast.Ident:
		if fn.Name == "recover" {
			return ErrorHandlerShape{Broad: true}, true
		}
	case *ast.SelectorExpr:
		pkg, ok := fn.X.(*ast.Ident)
		if !ok || pkg.Name != "errors" {
			return ErrorHandlerShape{}, false
		}
		if (fn.Sel.Name == "Is" || fn.Sel.Name == "As") && len(call.Args) == 2 {
			return ErrorHandlerShape{Caught: []string{exprText(call.Args[1])}}, true
		}
	}
	return ErrorHandlerShape{}, false
}

func typeText(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return "*" + typeText(t.X)
	case *ast.SelectorExpr:
		return typeText(t.X) + "." + t.Sel.Name
	case *ast.ArrayType:
		return "[]" + typeText(t.Elt)
	case *ast.MapType:
		return "map[" + typeText(t.Key) + "]" + typeText(t.Value)
	case *ast.Ellipsis:
		return "..." + typeText(t.Elt)
	case *ast.FuncType:
		return "func"
	case *ast.InterfaceType:
		return "interface"
	case *ast.ChanType:
		return "chan " + typeText(t.Value)
	default:
		return ""
	}
}

func exprText(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.SelectorExpr:
		return exprText(e.X) + "." + e.Sel.Name
	case *ast.UnaryExpr:
		return exprText(e.X)
	case *ast.CallExpr:
		return exprText(e.Fun)
	default:
		return ""
	}
}
