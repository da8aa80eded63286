package resolve

// Operator describes one forwardable C++ operator. Params counts the
// explicit parameters of the member form; the free form takes one more
// (the left operand). A count of -1 accepts any arity (operator()).
type Operator struct {
	// Kind is the word the model uses and the flat name carries.
	Kind string
	// Token is the C++ spelling after the operator keyword.
	Token string
	// Params is the explicit member-form parameter count, -1 for any.
	Params int
}

// operators lists every operator kind the generator can forward. Unary
// and binary minus (and star) are distinct kinds sharing a token; the
// model names the kind, so no arity guessing is needed.
var operators = []Operator{
	{Kind: "plus", Token: "+", Params: 1},
	{Kind: "minus", Token: "-", Params: 1},
	{Kind: "negate", Token: "-", Params: 0},
	{Kind: "multiply", Token: "*", Params: 1},
	{Kind: "dereference", Token: "*", Params: 0},
	{Kind: "divide", Token: "/", Params: 1},
	{Kind: "modulo", Token: "%", Params: 1},
	{Kind: "equals", Token: "==", Params: 1},
	{Kind: "not_equals", Token: "!=", Params: 1},
	{Kind: "less", Token: "<", Params: 1},
	{Kind: "greater", Token: ">", Params: 1},
	{Kind: "less_equals", Token: "<=", Params: 1},
	{Kind: "greater_equals", Token: ">=", Params: 1},
	{Kind: "not", Token: "!", Params: 0},
	{Kind: "bit_and", Token: "&", Params: 1},
	{Kind: "bit_or", Token: "|", Params: 1},
	{Kind: "bit_xor", Token: "^", Params: 1},
	{Kind: "bit_not", Token: "~", Params: 0},
	{Kind: "shift_left", Token: "<<", Params: 1},
	{Kind: "shift_right", Token: ">>", Params: 1},
	{Kind: "index", Token: "[]", Params: 1},
	{Kind: "call", Token: "()", Params: -1},
	{Kind: "increment", Token: "++", Params: 0},
	{Kind: "decrement", Token: "--", Params: 0},
	{Kind: "assign", Token: "=", Params: 1},
}

var operatorByKind = func() map[string]*Operator {
	m := make(map[string]*Operator, len(operators))
	for i := range operators {
		m[operators[i].Kind] = &operators[i]
	}
	return m
}()

// LookupOperator resolves an operator kind word from the model.
func LookupOperator(kind string) (*Operator, bool) {
	op, ok := operatorByKind[kind]
	return op, ok
}

// AcceptsArity reports whether the member form may take n explicit
// parameters. The free form passes n-1 here after peeling the left
// operand.
func (o *Operator) AcceptsArity(n int) bool {
	return o.Params == -1 || o.Params == n
}
