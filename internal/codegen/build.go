package codegen

// Short constructors used by generators. They keep statement lists readable
// without hiding which node is built.

// Id returns an identifier expression.
func Id(name string) Ident { return Ident(name) }

// Int returns an integer literal.
func Int(v int) IntLit { return IntLit(v) }

// Dot selects component name of x.
func Dot(x Expr, name string) Field { return Field{X: x, Name: name} }

// P parenthesises x.
func P(x Expr) Paren { return Paren{X: x} }

// Add returns x + y.
func Add(x, y Expr) Binary { return Binary{Op: OpAdd, X: x, Y: y} }

// Mul returns x * y.
func Mul(x, y Expr) Binary { return Binary{Op: OpMul, X: x, Y: y} }

// Div returns x / y.
func Div(x, y Expr) Binary { return Binary{Op: OpDiv, X: x, Y: y} }

// Rem returns x % y.
func Rem(x, y Expr) Binary { return Binary{Op: OpRem, X: x, Y: y} }

// Lt returns x < y.
func Lt(x, y Expr) Binary { return Binary{Op: OpLT, X: x, Y: y} }

// Ge returns x >= y.
func Ge(x, y Expr) Binary { return Binary{Op: OpGE, X: x, Y: y} }

// And returns x && y.
func And(x, y Expr) Binary { return Binary{Op: OpAnd, X: x, Y: y} }

// Or returns x || y.
func Or(x, y Expr) Binary { return Binary{Op: OpOr, X: x, Y: y} }

// Fn calls builtin name with args.
func Fn(name string, args ...Expr) Call { return Call{Func: name, Args: args} }

// Let declares and initialises a local.
func Let(t Type, name string, init Expr) Decl { return Decl{Type: t, Name: name, Init: init} }

// Var declares an uninitialised local.
func Var(t Type, name string) Decl { return Decl{Type: t, Name: name} }

// Set assigns rhs to name.
func Set(name string, rhs Expr) Assign { return Assign{Name: name, Op: "=", RHS: rhs} }

// AddTo accumulates rhs into name.
func AddTo(name string, rhs Expr) Assign { return Assign{Name: name, Op: "+=", RHS: rhs} }
