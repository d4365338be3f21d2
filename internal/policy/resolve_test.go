package policy

import "testing"

func TestResolveTarget(t *testing.T) {
	tests := []struct {
		name     string
		tool     string
		args     map[string]any
		resource string
		action   Action
		crud     bool
	}{
		{"non-crud tool", "search_documents", nil, "", "", false},
		{"create with table arg", "create_database_record", map[string]any{"table": "documents"}, "documents", ActionCreate, true},
		{"vector insert with collection", "insert_vector_document", map[string]any{"collection": "embeddings"}, "embeddings", ActionCreate, true},
		{"crud without resource arg", "delete_database_record", map[string]any{"id": 7}, "", ActionDelete, true},
		{"sql insert", "run_sql_query", map[string]any{"query": "INSERT INTO documents (a) VALUES (1)"}, "documents", ActionCreate, true},
		{"sql update", "execute_sql", map[string]any{"sql": "update public.orders set x=1"}, "public.orders", ActionUpdate, true},
		{"sql delete", "run_sql_query", map[string]any{"query": "DELETE FROM documents WHERE id=1"}, "documents", ActionDelete, true},
		{"sql select", "run_sql_query", map[string]any{"query": "select id, body from documents where id=1"}, "documents", ActionRead, true},
		{"sql select quoted table", "run_sql_query", map[string]any{"query": `select * from "documents";`}, "documents", ActionRead, true},
		{"sql unparseable", "run_sql_query", map[string]any{"query": "vacuum full"}, "", "", true},
		{"sql missing", "run_sql_query", nil, "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveTarget(tt.tool, tt.args)
			if got.Resource != tt.resource || got.Action != tt.action || got.CRUD != tt.crud {
				t.Fatalf("ResolveTarget = %+v, want {%s %s %v}", got, tt.resource, tt.action, tt.crud)
			}
		})
	}
}

func TestReadOnly(t *testing.T) {
	if !ReadOnly("search_documents", nil) {
		t.Fatal("non-crud tool should be read-only")
	}
	if !ReadOnly("read_database_record", map[string]any{"table": "documents"}) {
		t.Fatal("read action should be read-only")
	}
	if ReadOnly("create_database_record", map[string]any{"table": "documents"}) {
		t.Fatal("create action should not be read-only")
	}
	if ReadOnly("run_sql_query", map[string]any{"query": "delete from documents"}) {
		t.Fatal("sql delete should not be read-only")
	}
	if !ReadOnly("run_sql_query", map[string]any{"query": "select 1 from t"}) {
		t.Fatal("sql select should be read-only")
	}
}
