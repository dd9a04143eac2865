package moiss

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/moisslang/moiss/pkg/moiss/medlib"
	"github.com/moisslang/moiss/pkg/moiss/parser"
	"github.com/moisslang/moiss/pkg/moiss/units"
)

// returnControl unwinds a user function body back to its call site.
// It never escapes the executor.
type returnControl struct {
	value Value
}

func (r *returnControl) Error() string { return "return outside function" }

// executor walks a parsed program, one instance per run. KAE state is
// keyed by the tracked target path and lives only for the duration of
// the run.
type executor struct {
	ctx       context.Context
	lib       *Library
	loopLimit int
	emit      func(Event)

	types     map[string]*parser.TypeDecl
	functions map[string]*parser.FunctionDecl
	estimates map[string]*KAEEstimator
	globals   *Scope

	inputName string
	input     *Record
}

func newExecutor(ctx context.Context, lib *Library, loopLimit int, emit func(Event)) *executor {
	return &executor{
		ctx:       ctx,
		lib:       lib,
		loopLimit: loopLimit,
		emit:      emit,
		types:     make(map[string]*parser.TypeDecl),
		functions: make(map[string]*parser.FunctionDecl),
		estimates: make(map[string]*KAEEstimator),
	}
}

// run registers the program's declarations, then executes each
// protocol in source order against the supplied bindings.
func (x *executor) run(prog *parser.Program, patient *Record, extras map[string]Value) error {
	x.globals = NewScope()
	for name, val := range extras {
		x.globals.Declare(name, val)
	}

	for _, decl := range prog.Declarations {
		switch d := decl.(type) {
		case *parser.ImportDecl:
			x.emit(Event{Kind: EventLog, Line: d.Token.Line, Message: "import " + d.Path})
		case *parser.TypeDecl:
			x.types[d.Name] = d
		case *parser.FunctionDecl:
			x.functions[d.Name] = d
		}
	}

	for _, decl := range prog.Declarations {
		proto, ok := decl.(*parser.ProtocolDecl)
		if !ok {
			continue
		}
		if err := x.runProtocol(proto, patient); err != nil {
			return err
		}
	}
	return nil
}

func (x *executor) runProtocol(proto *parser.ProtocolDecl, patient *Record) error {
	scope := NewEnclosedScope(x.globals)
	x.inputName, x.input = "", nil
	if proto.Input != nil {
		x.inputName = proto.Input.Name
		x.input = patient
		scope.Declare(proto.Input.Name, patient)
	}
	x.emit(Event{Kind: EventLog, Line: proto.Token.Line, Message: "protocol " + proto.Name})

	for _, stmt := range proto.Body {
		if err := x.execStatement(stmt, scope); err != nil {
			if _, ok := err.(*returnControl); ok {
				return nil
			}
			return err
		}
	}
	return nil
}

func (x *executor) execBlock(block *parser.BlockStatement, scope *Scope) error {
	inner := NewEnclosedScope(scope)
	for _, stmt := range block.Statements {
		if err := x.execStatement(stmt, inner); err != nil {
			return err
		}
	}
	return nil
}

func (x *executor) execStatement(stmt parser.Statement, scope *Scope) error {
	if err := x.ctx.Err(); err != nil {
		return err
	}

	switch s := stmt.(type) {
	case *parser.LetStatement:
		return x.execLet(s, scope)
	case *parser.IfStatement:
		return x.execIf(s, scope)
	case *parser.WhileStatement:
		return x.execWhile(s, scope)
	case *parser.ForEachStatement:
		return x.execForEach(s, scope)
	case *parser.TrackStatement:
		return x.execTrack(s, scope)
	case *parser.AdministerStatement:
		return x.execAdminister(s, scope)
	case *parser.AssessStatement:
		return x.execAssess(s, scope)
	case *parser.AlertStatement:
		return x.execAlert(s, scope)
	case *parser.ReturnStatement:
		return x.execReturn(s, scope)
	case *parser.BlockStatement:
		return x.execBlock(s, scope)
	case *parser.ExpressionStatement:
		_, err := x.eval(s.Expression, scope)
		return err
	default:
		return &TypeError{Msg: fmt.Sprintf("unsupported statement %T", stmt)}
	}
}

func (x *executor) execLet(s *parser.LetStatement, scope *Scope) error {
	val, err := x.eval(s.Value, scope)
	if err != nil {
		return err
	}
	scope.Declare(s.Name, val)
	x.emit(Event{Kind: EventLet, Line: s.Token.Line, Name: s.Name, Value: val.Inspect()})
	return nil
}

func (x *executor) execIf(s *parser.IfStatement, scope *Scope) error {
	cond, err := x.eval(s.Condition, scope)
	if err != nil {
		return err
	}
	b, ok := cond.(*Boolean)
	if !ok {
		return &TypeError{Msg: fmt.Sprintf("if condition must be a boolean, got %s", cond.Type()), Line: s.Token.Line}
	}
	if b.Value {
		return x.execBlock(s.Consequence, scope)
	}
	if s.Alternative != nil {
		return x.execBlock(s.Alternative, scope)
	}
	return nil
}

func (x *executor) execWhile(s *parser.WhileStatement, scope *Scope) error {
	iterations := 0
	for {
		cond, err := x.eval(s.Condition, scope)
		if err != nil {
			return err
		}
		b, ok := cond.(*Boolean)
		if !ok {
			return &TypeError{Msg: fmt.Sprintf("while condition must be a boolean, got %s", cond.Type()), Line: s.Token.Line}
		}
		if !b.Value {
			return nil
		}
		iterations++
		if iterations >= x.loopLimit {
			return &LoopLimitError{Limit: x.loopLimit, Line: s.Token.Line}
		}
		if err := x.execBlock(s.Body, scope); err != nil {
			return err
		}
	}
}

func (x *executor) execForEach(s *parser.ForEachStatement, scope *Scope) error {
	iterable, err := x.eval(s.Iterable, scope)
	if err != nil {
		return err
	}
	list, ok := iterable.(*List)
	if !ok {
		return &TypeError{Msg: fmt.Sprintf("for target must be a list, got %s", iterable.Type()), Line: s.Token.Line}
	}

	count := 0
	for _, item := range list.Elements {
		count++
		if count >= x.loopLimit {
			return &LoopLimitError{Limit: x.loopLimit, Line: s.Token.Line}
		}
		inner := NewEnclosedScope(scope)
		inner.Declare(s.Var, item)
		for _, stmt := range s.Body.Statements {
			if err := x.execStatement(stmt, inner); err != nil {
				return err
			}
		}
	}
	x.emit(Event{Kind: EventForEachSummary, Line: s.Token.Line, Name: s.Var, Iterations: count})
	return nil
}

func (x *executor) execTrack(s *parser.TrackStatement, scope *Scope) error {
	val, err := x.resolvePath(s.Target, scope, s.Token.Line)
	if err != nil {
		return err
	}
	num, ok := val.(*Number)
	if !ok {
		return &TypeError{Msg: fmt.Sprintf("track target %s must be a number, got %s", s.Target, val.Type()), Line: s.Token.Line}
	}

	event := Event{Kind: EventTrack, Line: s.Token.Line, Target: s.Target, Sample: num.Value, UsingKAE: s.UsingKAE}
	if s.UsingKAE {
		est, ok := x.estimates[s.Target]
		if !ok {
			est = NewKAEEstimator()
			x.estimates[s.Target] = est
		}
		event.Position, event.Velocity = est.Update(num.Value, 1.0)
	} else {
		event.Position, event.Velocity = num.Value, 0
	}
	x.emit(event)
	return nil
}

func (x *executor) execAdminister(s *parser.AdministerStatement, scope *Scope) error {
	doseVal, err := x.eval(s.Dose, scope)
	if err != nil {
		return err
	}
	dose, ok := doseVal.(*Number)
	if !ok {
		return &TypeError{Msg: fmt.Sprintf("dose must be a quantity, got %s", doseVal.Type()), Line: s.Token.Line}
	}

	timing := Prophylactic
	profile, known := x.lib.Formulary().Profile(s.Drug)
	if known {
		if dose.Unit != "" && profile.DoseUnit != "" && !units.Compatible(dose.Unit, profile.DoseUnit) {
			return &UnitMismatchError{Op: "administer", LeftUnit: dose.Unit, RightUnit: profile.DoseUnit, Line: s.Token.Line}
		}
		checked := dose.Value
		if dose.Unit != "" && profile.DoseUnit != "" {
			checked, err = units.Convert(dose.Value, dose.Unit, profile.DoseUnit)
			if err != nil {
				return &UnitMismatchError{Op: "administer", LeftUnit: dose.Unit, RightUnit: profile.DoseUnit, Line: s.Token.Line}
			}
		}
		if derr := x.lib.Formulary().ValidateDose(s.Drug, checked); derr != nil {
			return &LibraryError{Function: "med.pk.validate_dose", Line: s.Token.Line, Err: derr}
		}
		timing = x.classifyAdminister(profile)
	}

	x.emit(Event{
		Kind:   EventAdminister,
		Line:   s.Token.Line,
		Drug:   s.Drug,
		Dose:   dose.Value,
		Unit:   dose.Unit,
		Timing: string(timing),
	})
	return nil
}

// classifyAdminister grades intervention timing from the best
// available estimate of the drug's target vital. A tracked KAE
// estimate supplies position, trend, and uncertainty; otherwise the
// raw patient field is used with zero trend.
func (x *executor) classifyAdminister(profile *medlib.DrugProfile) TimingClass {
	onset := profile.OnsetMin
	vital := profile.TargetVital
	threshold := profile.CriticalThreshold
	falling := profile.Direction == medlib.Falling

	pos, vel, uncertainty := math.NaN(), 0.0, 0.0
	if x.inputName != "" {
		if est, ok := x.estimates[x.inputName+"."+vital]; ok {
			pos, vel, uncertainty = est.Position(), est.Velocity(), est.Uncertainty()
		} else if x.input != nil {
			if raw, ok := x.input.Fields[vital].(*Number); ok {
				pos = raw.Value
			}
		}
	}
	if math.IsNaN(pos) {
		return ClassifyTiming(onset, math.Inf(1), 0)
	}
	return ClassifyTiming(onset, TimeToThreshold(pos, vel, threshold, falling), uncertainty)
}

func (x *executor) execAssess(s *parser.AssessStatement, scope *Scope) error {
	target, err := x.resolvePath(s.Target, scope, s.Token.Line)
	if err != nil {
		return err
	}

	event := Event{Kind: EventAssess, Line: s.Token.Line, Target: s.Target, Condition: s.Condition}
	rec, isRecord := target.(*Record)
	if s.Condition == "sepsis" && isRecord {
		result, lerr := x.lib.Invoke("med.scores.qsofa", []Value{rec})
		if lerr != nil {
			return &LibraryError{Function: "med.scores.qsofa", Line: s.Token.Line, Err: lerr}
		}
		score := result.(*Number).Value
		event.Score = score
		switch {
		case score >= 3:
			event.Risk = "HIGH"
		case score >= 2:
			event.Risk = "MODERATE"
		default:
			event.Risk = "LOW"
		}
	} else {
		event.Risk = "UNKNOWN"
	}
	x.emit(event)
	return nil
}

func (x *executor) execAlert(s *parser.AlertStatement, scope *Scope) error {
	msg, err := x.eval(s.Message, scope)
	if err != nil {
		return err
	}
	x.emit(Event{Kind: EventAlert, Line: s.Token.Line, Message: msg.Inspect(), Severity: s.Severity})
	return nil
}

func (x *executor) execReturn(s *parser.ReturnStatement, scope *Scope) error {
	var val Value = NULL
	if s.Value != nil {
		v, err := x.eval(s.Value, scope)
		if err != nil {
			return err
		}
		val = v
	}
	return &returnControl{value: val}
}

// resolvePath walks a dotted path such as "p.lactate" from the scope
// down through record fields.
func (x *executor) resolvePath(path string, scope *Scope, line int) (Value, error) {
	parts := strings.Split(path, ".")
	val, ok := scope.Get(parts[0])
	if !ok {
		return nil, &NameError{Name: parts[0], Line: line}
	}
	for _, member := range parts[1:] {
		rec, isRecord := val.(*Record)
		if !isRecord {
			return nil, &TypeError{Msg: fmt.Sprintf("%s has no fields, cannot access %q", val.Type(), member), Line: line}
		}
		field, found := rec.Fields[member]
		if !found {
			return nil, &NameError{Name: member, Line: line, Available: rec.FieldNames()}
		}
		val = field
	}
	return val, nil
}

func (x *executor) eval(expr parser.Expression, scope *Scope) (Value, error) {
	switch e := expr.(type) {
	case *parser.NumberLiteral:
		return &Number{Value: e.Value, Unit: e.Unit}, nil
	case *parser.StringLiteral:
		return &String{Value: e.Value}, nil
	case *parser.BooleanLiteral:
		return nativeBoolToValue(e.Value), nil
	case *parser.NullLiteral:
		return NULL, nil
	case *parser.ListLiteral:
		return x.evalList(e, scope)
	case *parser.Identifier:
		val, ok := scope.Get(e.Value)
		if !ok {
			return nil, &NameError{Name: e.Value, Line: e.Token.Line}
		}
		return val, nil
	case *parser.MemberExpression:
		return x.evalMember(e, scope)
	case *parser.IndexExpression:
		return x.evalIndex(e, scope)
	case *parser.PrefixExpression:
		return x.evalPrefix(e, scope)
	case *parser.InfixExpression:
		return x.evalInfix(e, scope)
	case *parser.CallExpression:
		return x.evalCall(e, scope)
	case *parser.ConstructorExpression:
		return x.evalConstructor(e, scope)
	default:
		return nil, &TypeError{Msg: fmt.Sprintf("unsupported expression %T", expr)}
	}
}

func (x *executor) evalList(e *parser.ListLiteral, scope *Scope) (Value, error) {
	elems := make([]Value, len(e.Elements))
	for i, el := range e.Elements {
		v, err := x.eval(el, scope)
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}
	return &List{Elements: elems}, nil
}

func (x *executor) evalMember(e *parser.MemberExpression, scope *Scope) (Value, error) {
	obj, err := x.eval(e.Object, scope)
	if err != nil {
		return nil, err
	}
	rec, ok := obj.(*Record)
	if !ok {
		return nil, &TypeError{Msg: fmt.Sprintf("%s has no fields, cannot access %q", obj.Type(), e.Member), Line: e.Token.Line}
	}
	field, found := rec.Fields[e.Member]
	if !found {
		return nil, &NameError{Name: e.Member, Line: e.Token.Line, Available: rec.FieldNames()}
	}
	return field, nil
}

func (x *executor) evalIndex(e *parser.IndexExpression, scope *Scope) (Value, error) {
	left, err := x.eval(e.Left, scope)
	if err != nil {
		return nil, err
	}
	idx, err := x.eval(e.Index, scope)
	if err != nil {
		return nil, err
	}
	list, ok := left.(*List)
	if !ok {
		return nil, &TypeError{Msg: fmt.Sprintf("%s is not indexable", left.Type()), Line: e.Token.Line}
	}
	n, ok := idx.(*Number)
	if !ok {
		return nil, &TypeError{Msg: fmt.Sprintf("list index must be a number, got %s", idx.Type()), Line: e.Token.Line}
	}
	i := int(n.Value)
	if i < 0 || i >= len(list.Elements) {
		return nil, &IndexError{Index: i, Length: len(list.Elements), Line: e.Token.Line}
	}
	return list.Elements[i], nil
}

func (x *executor) evalPrefix(e *parser.PrefixExpression, scope *Scope) (Value, error) {
	right, err := x.eval(e.Right, scope)
	if err != nil {
		return nil, err
	}
	switch e.Operator {
	case "-":
		n, ok := right.(*Number)
		if !ok {
			return nil, &TypeError{Op: "-", Left: right.Type(), Line: e.Token.Line}
		}
		return &Number{Value: -n.Value, Unit: n.Unit}, nil
	case "not":
		b, ok := right.(*Boolean)
		if !ok {
			return nil, &TypeError{Op: "not", Left: right.Type(), Line: e.Token.Line}
		}
		return nativeBoolToValue(!b.Value), nil
	}
	return nil, &TypeError{Op: e.Operator, Left: right.Type(), Line: e.Token.Line}
}

func (x *executor) evalInfix(e *parser.InfixExpression, scope *Scope) (Value, error) {
	left, err := x.eval(e.Left, scope)
	if err != nil {
		return nil, err
	}
	right, err := x.eval(e.Right, scope)
	if err != nil {
		return nil, err
	}

	switch {
	case e.Operator == "and" || e.Operator == "or":
		lb, lok := left.(*Boolean)
		rb, rok := right.(*Boolean)
		if !lok || !rok {
			return nil, &TypeError{Op: e.Operator, Left: left.Type(), Right: right.Type(), Line: e.Token.Line}
		}
		if e.Operator == "and" {
			return nativeBoolToValue(lb.Value && rb.Value), nil
		}
		return nativeBoolToValue(lb.Value || rb.Value), nil

	case left.Type() == NUMBER_VAL && right.Type() == NUMBER_VAL:
		return x.evalNumberInfix(e, left.(*Number), right.(*Number))

	case left.Type() == STRING_VAL && right.Type() == STRING_VAL:
		ls, rs := left.(*String).Value, right.(*String).Value
		switch e.Operator {
		case "+":
			return &String{Value: ls + rs}, nil
		case "==":
			return nativeBoolToValue(ls == rs), nil
		case "!=":
			return nativeBoolToValue(ls != rs), nil
		}
		return nil, &TypeError{Op: e.Operator, Left: left.Type(), Right: right.Type(), Line: e.Token.Line}

	case e.Operator == "==":
		return nativeBoolToValue(valueEquals(left, right)), nil
	case e.Operator == "!=":
		return nativeBoolToValue(!valueEquals(left, right)), nil
	}
	return nil, &TypeError{Op: e.Operator, Left: left.Type(), Right: right.Type(), Line: e.Token.Line}
}

func (x *executor) evalNumberInfix(e *parser.InfixExpression, left, right *Number) (Value, error) {
	op := e.Operator
	line := e.Token.Line

	switch op {
	case "*", "/":
		// Scalar scaling: one united operand at most.
		if left.Unit != "" && right.Unit != "" {
			return nil, &UnitMismatchError{Op: op, LeftUnit: left.Unit, RightUnit: right.Unit, Line: line}
		}
		unit := left.Unit
		if unit == "" {
			unit = right.Unit
		}
		if op == "*" {
			return &Number{Value: left.Value * right.Value, Unit: unit}, nil
		}
		if right.Value == 0 {
			return &Number{Value: 0, Unit: unit}, nil
		}
		return &Number{Value: left.Value / right.Value, Unit: unit}, nil
	}

	// Addition, subtraction, and comparison need compatible dimensions;
	// the right operand is converted into the left operand's unit.
	if !units.Compatible(left.Unit, right.Unit) {
		return nil, &UnitMismatchError{Op: op, LeftUnit: left.Unit, RightUnit: right.Unit, Line: line}
	}
	rv := right.Value
	if left.Unit != right.Unit {
		converted, err := units.Convert(right.Value, right.Unit, left.Unit)
		if err != nil {
			return nil, &UnitMismatchError{Op: op, LeftUnit: left.Unit, RightUnit: right.Unit, Line: line}
		}
		rv = converted
	}

	switch op {
	case "+":
		return &Number{Value: left.Value + rv, Unit: left.Unit}, nil
	case "-":
		return &Number{Value: left.Value - rv, Unit: left.Unit}, nil
	case "<":
		return nativeBoolToValue(left.Value < rv), nil
	case ">":
		return nativeBoolToValue(left.Value > rv), nil
	case "<=":
		return nativeBoolToValue(left.Value <= rv), nil
	case ">=":
		return nativeBoolToValue(left.Value >= rv), nil
	case "==":
		return nativeBoolToValue(left.Value == rv), nil
	case "!=":
		return nativeBoolToValue(left.Value != rv), nil
	}
	return nil, &TypeError{Op: op, Left: NUMBER_VAL, Right: NUMBER_VAL, Line: line}
}

func valueEquals(left, right Value) bool {
	switch l := left.(type) {
	case *Null:
		_, ok := right.(*Null)
		return ok
	case *Boolean:
		r, ok := right.(*Boolean)
		return ok && l.Value == r.Value
	}
	return false
}

func (x *executor) evalCall(e *parser.CallExpression, scope *Scope) (Value, error) {
	// Dotted targets rooted outside the scope resolve against the
	// default library: med.scores.qsofa(p).
	if path, ok := dottedPath(e.Function); ok {
		root := strings.SplitN(path, ".", 2)[0]
		if _, bound := scope.Get(root); !bound && x.lib.HasPrefix(root) {
			args, err := x.evalArgs(e.Arguments, scope)
			if err != nil {
				return nil, err
			}
			if !x.lib.Has(path) {
				return nil, &NameError{Name: path, Line: e.Token.Line, Available: x.lib.Paths()}
			}
			result, lerr := x.lib.Invoke(path, args)
			if lerr != nil {
				return nil, &LibraryError{Function: path, Line: e.Token.Line, Err: lerr}
			}
			return result, nil
		}
	}

	ident, ok := e.Function.(*parser.Identifier)
	if !ok {
		return nil, &TypeError{Msg: "expression is not callable", Line: e.Token.Line}
	}
	fn, found := x.functions[ident.Value]
	if !found {
		return nil, &NameError{Name: ident.Value, Line: e.Token.Line}
	}
	args, err := x.evalArgs(e.Arguments, scope)
	if err != nil {
		return nil, err
	}
	if len(args) != len(fn.Params) {
		return nil, &TypeError{
			Msg:  fmt.Sprintf("function %s expects %d arguments, got %d", fn.Name, len(fn.Params), len(args)),
			Line: e.Token.Line,
		}
	}

	fnScope := NewEnclosedScope(x.globals)
	for i, param := range fn.Params {
		fnScope.Declare(param.Name, args[i])
	}
	if err := x.execBlock(fn.Body, fnScope); err != nil {
		if ret, ok := err.(*returnControl); ok {
			return ret.value, nil
		}
		return nil, err
	}
	return NULL, nil
}

func (x *executor) evalArgs(exprs []parser.Expression, scope *Scope) ([]Value, error) {
	args := make([]Value, len(exprs))
	for i, a := range exprs {
		v, err := x.eval(a, scope)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func (x *executor) evalConstructor(e *parser.ConstructorExpression, scope *Scope) (Value, error) {
	fields, err := x.typeFields(e.TypeName, scope, e.Token.Line, 0)
	if err != nil {
		return nil, err
	}
	for _, f := range e.Fields {
		if _, declared := fields[f.Name]; !declared {
			names := make([]string, 0, len(fields))
			for name := range fields {
				names = append(names, name)
			}
			return nil, &NameError{Name: f.Name, Line: e.Token.Line, Available: names}
		}
		v, err := x.eval(f.Value, scope)
		if err != nil {
			return nil, err
		}
		fields[f.Name] = v
	}
	return &Record{TypeName: e.TypeName, Fields: fields}, nil
}

// typeFields builds the field set for a type, parent chain first, with
// declared defaults evaluated and unset fields bound to null.
func (x *executor) typeFields(typeName string, scope *Scope, line, depth int) (map[string]Value, error) {
	if depth > len(x.types) {
		return nil, &TypeError{Msg: fmt.Sprintf("type %s has a circular extends chain", typeName), Line: line}
	}
	decl, ok := x.types[typeName]
	if !ok {
		return nil, &NameError{Name: typeName, Line: line}
	}

	fields := make(map[string]Value)
	if decl.Parent != "" {
		parent, err := x.typeFields(decl.Parent, scope, line, depth+1)
		if err != nil {
			return nil, err
		}
		fields = parent
	}
	for _, f := range decl.Fields {
		if f.Default != nil {
			v, err := x.eval(f.Default, scope)
			if err != nil {
				return nil, err
			}
			fields[f.Name] = v
		} else {
			fields[f.Name] = NULL
		}
	}
	return fields, nil
}

// dottedPath flattens a chain of member expressions rooted at an
// identifier into "a.b.c". Returns false for any other shape.
func dottedPath(expr parser.Expression) (string, bool) {
	switch e := expr.(type) {
	case *parser.Identifier:
		return e.Value, true
	case *parser.MemberExpression:
		base, ok := dottedPath(e.Object)
		if !ok {
			return "", false
		}
		return base + "." + e.Member, true
	}
	return "", false
}
