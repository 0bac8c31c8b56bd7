package graph

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

//go:embed schema.graphqls
var schemaSource string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: schemaSource})

// executableSchema serves the schema above with gqlgen's handler. Field
// resolution is table driven off Resolver.objectTypes.
type executableSchema struct {
	resolver *Resolver
	types    map[string]objectType
}

// NewExecutableSchema wires r into a graphql.ExecutableSchema.
func NewExecutableSchema(r *Resolver) graphql.ExecutableSchema {
	return &executableSchema{resolver: r, types: r.objectTypes()}
}

func (e *executableSchema) Schema() *ast.Schema {
	return parsedSchema
}

// Complexity weights feed by its limit so a large page of nested owners
// counts for what it costs.
func (e *executableSchema) Complexity(_ context.Context, typeName, fieldName string, childComplexity int, args map[string]any) (int, bool) {
	if typeName == "Query" && fieldName == "feed" {
		limit, err := intArg(args, "limit")
		if err != nil || limit <= 0 {
			return 0, false
		}
		return 1 + limit*childComplexity, true
	}
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	opCtx := graphql.GetOperationContext(ctx)
	switch opCtx.Operation.Operation {
	case ast.Query:
		first := true
		return func(ctx context.Context) *graphql.Response {
			if !first {
				return nil
			}
			first = false

			x := &execution{e: e, opCtx: opCtx}
			// a null that bubbles past every field nulls data itself
			data, _ := x.completeObject(ctx, x.prepare(ctx, "Query", nil, opCtx.Operation.SelectionSet, nil))
			var buf bytes.Buffer
			if err := json.NewEncoder(&buf).Encode(data); err != nil {
				return graphql.ErrorResponse(ctx, "encode response: %v", err)
			}
			return &graphql.Response{Data: bytes.TrimSpace(buf.Bytes()), Errors: x.errs}
		}
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}
}

// execution is the state of one query. It is not shared between goroutines.
type execution struct {
	e     *executableSchema
	opCtx *graphql.OperationContext
	errs  gqlerror.List
}

func (x *execution) fail(ctx context.Context, path ast.Path, err error) {
	x.errs = append(x.errs, x.e.resolver.presentError(ctx, path, err))
}

// preparedField is a selected field whose resolver has run. value may still
// be a thunk.
type preparedField struct {
	key   string
	field graphql.CollectedField
	path  ast.Path
	value any
	err   error
}

type preparedObject struct {
	typeName string
	fields   []preparedField
}

// prepare runs the resolvers of every field selected on obj without
// awaiting loads.
func (x *execution) prepare(ctx context.Context, typeName string, obj any, sel ast.SelectionSet, path ast.Path) *preparedObject {
	p := &preparedObject{typeName: typeName}
	for _, f := range graphql.CollectFields(x.opCtx, sel, []string{typeName}) {
		pf := preparedField{key: f.Alias, field: f, path: appendPath(path, ast.PathName(f.Alias))}
		switch {
		case f.Name == "__typename":
			pf.value = typeName
		case f.Name == "__schema" || f.Name == "__type":
			pf.err = gqlerror.Errorf("introspection is not served by this endpoint")
		default:
			resolve, ok := x.e.types[typeName][f.Name]
			if !ok {
				pf.err = fmt.Errorf("no resolver for %s.%s", typeName, f.Name)
				break
			}
			pf.value, pf.err = resolve(ctx, obj, f.ArgumentMap(x.opCtx.Variables))
		}
		p.fields = append(p.fields, pf)
	}
	return p
}

// completeObject awaits and renders the prepared fields. ok is false when a
// non-null field came back null, which nulls the object itself.
func (x *execution) completeObject(ctx context.Context, p *preparedObject) (*orderedObject, bool) {
	out := &orderedObject{}
	for _, pf := range p.fields {
		if pf.err != nil {
			x.fail(ctx, pf.path, pf.err)
			if pf.field.Definition == nil || pf.field.Definition.Type.NonNull {
				return nil, false
			}
			out.set(pf.key, nil)
			continue
		}
		if pf.field.Definition == nil {
			out.set(pf.key, pf.value)
			continue
		}
		v, ok := x.completeValue(ctx, pf.field.Definition.Type, pf.value, pf.field.Selections, pf.path)
		if !ok {
			return nil, false
		}
		out.set(pf.key, v)
	}
	return out, true
}

// completeValue renders v as typ. ok is false when the null has to bubble
// to the parent.
func (x *execution) completeValue(ctx context.Context, typ *ast.Type, v any, sel ast.SelectionSet, path ast.Path) (any, bool) {
	if t, isThunk := v.(thunk); isThunk {
		var err error
		if v, err = t(); err != nil {
			x.fail(ctx, path, err)
			return nil, !typ.NonNull
		}
	}
	if v == nil {
		if typ.NonNull {
			x.fail(ctx, path, fmt.Errorf("non-null field resolved to null"))
			return nil, false
		}
		return nil, true
	}

	if typ.Elem != nil {
		items, isList := v.([]any)
		if !isList {
			x.fail(ctx, path, fmt.Errorf("expected a list, got %T", v))
			return nil, !typ.NonNull
		}
		return x.completeList(ctx, typ, items, sel, path)
	}

	if def := parsedSchema.Types[typ.Name()]; def != nil && def.Kind == ast.Object {
		obj, ok := x.completeObject(ctx, x.prepare(ctx, typ.Name(), v, sel, path))
		if !ok {
			return nil, !typ.NonNull
		}
		return obj, true
	}
	return v, true
}

// completeList prepares every element before completing any, so loads
// queued by sibling elements land in one batch.
func (x *execution) completeList(ctx context.Context, typ *ast.Type, items []any, sel ast.SelectionSet, path ast.Path) (any, bool) {
	elem := typ.Elem
	def := parsedSchema.Types[elem.Name()]
	isObject := def != nil && def.Kind == ast.Object

	prepared := make([]*preparedObject, len(items))
	if isObject {
		for i, item := range items {
			if _, isThunk := item.(thunk); !isThunk && item != nil {
				prepared[i] = x.prepare(ctx, elem.Name(), item, sel, appendPath(path, ast.PathIndex(i)))
			}
		}
	}

	out := make([]any, len(items))
	for i, item := range items {
		var (
			v  any
			ok bool
		)
		if prepared[i] != nil {
			var obj *orderedObject
			if obj, ok = x.completeObject(ctx, prepared[i]); ok {
				v = obj
			} else if !elem.NonNull {
				ok = true
			}
		} else {
			v, ok = x.completeValue(ctx, elem, item, sel, appendPath(path, ast.PathIndex(i)))
		}
		if !ok {
			return nil, !typ.NonNull
		}
		out[i] = v
	}
	return out, true
}

func appendPath(path ast.Path, el ast.PathElement) ast.Path {
	return append(slices.Clip(path), el)
}

// orderedObject keeps response keys in selection order.
type orderedObject struct {
	keys   []string
	values []any
}

func (o *orderedObject) set(key string, v any) {
	// Repeated selections merge into the first occurrence.
	if i := slices.Index(o.keys, key); i >= 0 {
		o.values[i] = v
		return
	}
	o.keys = append(o.keys, key)
	o.values = append(o.values, v)
}

func (o *orderedObject) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
