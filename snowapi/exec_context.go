package snowapi

// ExecutionContext is the session a statement runs in. Empty fields leave
// the choice to the server defaults of the user. Values are immutable; the
// With methods return modified copies.
type ExecutionContext struct {
	Warehouse string
	Database  string
	Schema    string
	Role      string

	// Nullable selects how SQL NULL comes back: as JSON null when true, as
	// the string "null" when false.
	Nullable bool

	// Timeout is the server-side statement timeout in seconds; 0 keeps the
	// account default.
	Timeout int
}

// NewExecutionContext returns a context with server defaults and nulls
// permitted.
func NewExecutionContext() ExecutionContext {
	return ExecutionContext{Nullable: true}
}

func (ec ExecutionContext) WithWarehouse(warehouse string) ExecutionContext {
	ec.Warehouse = warehouse
	return ec
}

func (ec ExecutionContext) WithDatabase(database string) ExecutionContext {
	ec.Database = database
	return ec
}

func (ec ExecutionContext) WithSchema(schema string) ExecutionContext {
	ec.Schema = schema
	return ec
}

func (ec ExecutionContext) WithRole(role string) ExecutionContext {
	ec.Role = role
	return ec
}

func (ec ExecutionContext) WithNullable(nullable bool) ExecutionContext {
	ec.Nullable = nullable
	return ec
}

func (ec ExecutionContext) WithTimeout(seconds int) ExecutionContext {
	ec.Timeout = seconds
	return ec
}
