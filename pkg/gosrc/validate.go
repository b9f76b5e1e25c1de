package gosrc

import (
	"fmt"
	"go/ast"
	"go/importer"
	"go/parser"
	"go/token"
	"go/types"
	"path/filepath"
	"strings"
)

// ValidationError represents a Go validation error with position info
type ValidationError struct {
	Line     int
	Column   int
	Function string // Method/function name containing the error
	Receiver string // Receiver type for methods (empty for functions)
	Message  string
}

// Validator type-checks generated Go source in memory. Imports are
// resolved from source relative to the directory of filename, so the
// validated file sees the same packages it will be compiled against.
type Validator struct {
	fset     *token.FileSet
	filename string
}

// NewValidator creates a validator for the given filename (used in error
// messages and for import resolution).
func NewValidator(filename string) *Validator {
	if abs, err := filepath.Abs(filename); err == nil {
		filename = abs
	}
	return &Validator{
		filename: filename,
	}
}

// Validate parses and type-checks Go source code, returning any errors
func (v *Validator) Validate(source string) []ValidationError {
	v.fset = token.NewFileSet()

	// Step 1: Parse the source
	file, err := parser.ParseFile(v.fset, v.filename, source, parser.AllErrors)
	if err != nil {
		return []ValidationError{{Line: 1, Column: 1, Message: err.Error()}}
	}

	// Build function location map for error attribution
	funcMap := v.buildFunctionMap(file)

	// Step 2: Type-check
	var typeCheckErrors []ValidationError

	conf := types.Config{
		Importer: importer.ForCompiler(v.fset, "source", nil),
		Error: func(err error) {
			// types.Error has a Pos field (not a Pos() method)
			typeErr, ok := err.(types.Error)
			if !ok {
				typeCheckErrors = append(typeCheckErrors, ValidationError{Function: "<package>", Message: err.Error()})
				return
			}
			pos := v.fset.Position(typeErr.Pos)

			fn := funcMap[pos.Line]
			if fn == nil {
				fn = &functionInfo{Name: "<package>"}
			}

			typeCheckErrors = append(typeCheckErrors, ValidationError{
				Line:     pos.Line,
				Column:   pos.Column,
				Function: fn.Name,
				Receiver: fn.Receiver,
				Message:  typeErr.Msg,
			})
		},
	}

	_, _ = conf.Check(file.Name.Name, v.fset, []*ast.File{file}, nil)

	return typeCheckErrors
}

// MethodsWithErrors returns the set of methods that have errors, as
// "Receiver.Method".
func (v *Validator) MethodsWithErrors(errors []ValidationError) map[string]bool {
	methods := make(map[string]bool)
	for _, err := range errors {
		if err.Function != "" && err.Function != "<package>" {
			if err.Receiver != "" {
				methods[err.Receiver+"."+err.Function] = true
			} else {
				methods[err.Function] = true
			}
		}
	}
	return methods
}

type functionInfo struct {
	Name      string
	Receiver  string
	StartLine int
	EndLine   int
}

func (v *Validator) buildFunctionMap(file *ast.File) map[int]*functionInfo {
	funcMap := make(map[int]*functionInfo)

	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok {
			continue
		}
		startPos := v.fset.Position(fn.Pos())
		endPos := v.fset.Position(fn.End())

		info := &functionInfo{
			Name:      fn.Name.Name,
			StartLine: startPos.Line,
			EndLine:   endPos.Line,
		}

		// Check if it's a method (has a receiver)
		if fn.Recv != nil && len(fn.Recv.List) > 0 {
			info.Receiver = receiverType(fn.Recv.List[0].Type)
		}

		// Map each line in the function to this function info
		for line := startPos.Line; line <= endPos.Line; line++ {
			funcMap[line] = info
		}
	}

	return funcMap
}

func receiverType(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		if ident, ok := t.X.(*ast.Ident); ok {
			return "*" + ident.Name
		}
	}
	return ""
}

// FormatValidationErrors returns a human-readable error report
func FormatValidationErrors(errors []ValidationError) string {
	if len(errors) == 0 {
		return ""
	}

	var sb strings.Builder
	for _, err := range errors {
		sb.WriteString("  ")
		if err.Line > 0 {
			fmt.Fprintf(&sb, "line %d: ", err.Line)
		}
		if err.Function != "" && err.Function != "<package>" {
			if err.Receiver != "" {
				sb.WriteString("(" + err.Receiver + ")." + err.Function)
			} else {
				sb.WriteString(err.Function)
			}
			sb.WriteString(": ")
		}
		sb.WriteString(err.Message)
		sb.WriteString("\n")
	}

	return sb.String()
}
