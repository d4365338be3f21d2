package policy

import "testing"

func TestAuthorizeToolGrants(t *testing.T) {
	engine := NewEngine(Builtin())

	tests := []struct {
		name    string
		roles   []string
		tool    string
		allowed bool
		reason  string
	}{
		{"guest health_check", []string{"guest"}, "health_check", true, ""},
		{"guest search_web", []string{"guest"}, "search_web", false, ReasonToolNotPermitted},
		{"no roles", nil, "health_check", false, ReasonToolNotPermitted},
		{"unknown role", []string{"intern"}, "health_check", false, ReasonToolNotPermitted},
		{"admin wildcard", []string{"admin"}, "anything_at_all", true, ""},
		{"role name case-insensitive", []string{"Guest"}, "health_check", true, ""},
		{"empty tool", []string{"admin"}, "", false, ReasonToolNotPermitted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := engine.Authorize(tt.roles, tt.tool, "", "")
			if d.Allowed != tt.allowed {
				t.Fatalf("Allowed = %v, want %v", d.Allowed, tt.allowed)
			}
			if d.Reason != tt.reason {
				t.Fatalf("Reason = %q, want %q", d.Reason, tt.reason)
			}
		})
	}
}

func TestAuthorizeResourceGrants(t *testing.T) {
	engine := NewEngine(Builtin())

	tests := []struct {
		name     string
		roles    []string
		tool     string
		resource string
		action   Action
		allowed  bool
		reason   string
	}{
		{"analyst create documents", []string{"analyst"}, "create_database_record", "documents", ActionCreate, true, ""},
		{"analyst delete documents", []string{"analyst"}, "delete_database_record", "documents", ActionDelete, false, ReasonResourceNotPermitted},
		{"analyst update documents", []string{"analyst"}, "update_database_record", "documents", ActionUpdate, true, ""},
		{"analyst create other table", []string{"analyst"}, "create_database_record", "secrets", ActionCreate, false, ReasonResourceNotPermitted},
		{"analyst read via prefix pattern", []string{"analyst"}, "run_sql_query", "public.orders", ActionRead, true, ""},
		{"analyst write via prefix pattern", []string{"analyst"}, "run_sql_query", "public.orders", ActionUpdate, false, ReasonResourceNotPermitted},
		{"unresolved resource", []string{"analyst"}, "run_sql_query", "", ActionRead, false, ReasonResourceNotPermitted},
		{"admin delete anywhere", []string{"admin"}, "delete_database_record", "documents", ActionDelete, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := engine.Authorize(tt.roles, tt.tool, tt.resource, tt.action)
			if d.Allowed != tt.allowed {
				t.Fatalf("Allowed = %v, want %v", d.Allowed, tt.allowed)
			}
			if d.Reason != tt.reason {
				t.Fatalf("Reason = %q, want %q", d.Reason, tt.reason)
			}
		})
	}
}

func TestAuthorizeUnionOfRoles(t *testing.T) {
	engine := NewEngine(Ruleset{
		"reader": {
			Tools: []string{"read_database_record"},
			Resources: []ResourceGrant{
				{Pattern: "documents", Actions: []Action{ActionRead}},
			},
		},
		"writer": {
			Tools: []string{"create_database_record"},
			Resources: []ResourceGrant{
				{Pattern: "documents", Actions: []Action{ActionCreate}},
			},
		},
	})

	// Neither role alone grants this combination.
	if d := engine.Authorize([]string{"reader"}, "create_database_record", "documents", ActionCreate); d.Allowed {
		t.Fatal("reader alone should be denied")
	}
	// The union does: one granting role is enough.
	if d := engine.Authorize([]string{"reader", "writer"}, "create_database_record", "documents", ActionCreate); !d.Allowed {
		t.Fatalf("union denied: %s", d.Reason)
	}
}

func TestAuthorizeIsPure(t *testing.T) {
	engine := NewEngine(Builtin())
	roles := []string{"analyst", "guest"}
	first := engine.Authorize(roles, "create_database_record", "documents", ActionCreate)
	for i := 0; i < 100; i++ {
		if got := engine.Authorize(roles, "create_database_record", "documents", ActionCreate); got != first {
			t.Fatalf("decision changed on call %d: %+v != %+v", i, got, first)
		}
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern, value string
		want           bool
	}{
		{"*", "anything", true},
		{"public.*", "public.orders", true},
		{"public.*", "private.orders", false},
		{"documents", "documents", true},
		{"documents", "documents_archive", false},
		{"doc*", "documents", true},
	}
	for _, tt := range tests {
		if got := matchPattern(tt.pattern, tt.value); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.pattern, tt.value, got, tt.want)
		}
	}
}
