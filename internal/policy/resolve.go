package policy

import "strings"

// crudTools maps tool names that mutate or read backend resources to
// the CRUD action they perform. Tools absent from this table (and from
// sqlTools) need no resource grant, only a tool grant.
var crudTools = map[string]Action{
	"create_database_record": ActionCreate,
	"read_database_record":   ActionRead,
	"update_database_record": ActionUpdate,
	"delete_database_record": ActionDelete,

	"insert_vector_document": ActionCreate,
	"query_vector_collection": ActionRead,
	"delete_vector_document": ActionDelete,
}

// sqlTools accept a raw SQL statement; resource and action are derived
// from the statement text itself.
var sqlTools = map[string]struct{}{
	"execute_sql":   {},
	"run_sql_query": {},
}

// Target is the resolved object of a CRUD-capable call.
type Target struct {
	Resource string
	Action   Action
	// CRUD reports whether the tool needs a resource grant at all.
	CRUD bool
}

// ResolveTarget determines the resource and action a tool call is aimed
// at, using the call arguments. For non-CRUD tools it returns
// Target{CRUD: false}. For CRUD tools whose resource cannot be
// determined it returns an empty Resource, which Authorize denies.
func ResolveTarget(tool string, args map[string]any) Target {
	if _, ok := sqlTools[tool]; ok {
		resource, action, parsed := resolveSQL(stringArg(args, "query", "sql", "statement"))
		if !parsed {
			// Unparseable statements are denied downstream.
			return Target{CRUD: true}
		}
		return Target{Resource: resource, Action: action, CRUD: true}
	}
	action, ok := crudTools[tool]
	if !ok {
		return Target{}
	}
	return Target{
		Resource: stringArg(args, "table", "collection", "resource"),
		Action:   action,
		CRUD:     true,
	}
}

// ReadOnly reports whether a tool call is safe to retry after an
// upstream timeout. CRUD calls other than reads are assumed unsafe.
func ReadOnly(tool string, args map[string]any) bool {
	target := ResolveTarget(tool, args)
	if !target.CRUD {
		return true
	}
	return target.Action == ActionRead
}

func stringArg(args map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := args[key].(string); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// resolveSQL extracts the target table and CRUD action from a raw SQL
// statement. Only the leading verb and its immediate table reference
// are inspected; anything else fails resolution and is denied.
func resolveSQL(query string) (string, Action, bool) {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) < 2 {
		return "", "", false
	}
	switch fields[0] {
	case "insert":
		// insert into <table> ...
		if len(fields) >= 3 && fields[1] == "into" {
			return trimIdent(fields[2]), ActionCreate, true
		}
	case "update":
		// update <table> set ...
		return trimIdent(fields[1]), ActionUpdate, true
	case "delete":
		// delete from <table> ...
		if len(fields) >= 3 && fields[1] == "from" {
			return trimIdent(fields[2]), ActionDelete, true
		}
	case "select":
		// select ... from <table> ...
		for i, f := range fields[:len(fields)-1] {
			if f == "from" {
				return trimIdent(fields[i+1]), ActionRead, true
			}
		}
	}
	return "", "", false
}

func trimIdent(ident string) string {
	ident = strings.Trim(ident, `"`)
	ident = strings.TrimRight(ident, ";,()")
	return ident
}
