package policy

// Builtin returns the default ruleset shipped with the gateway. Deploys
// with bespoke roles load their own Ruleset instead; this one covers
// the three stock roles.
func Builtin() Ruleset {
	return Ruleset{
		"guest": {
			Tools: []string{"health_check", "ping"},
		},
		"analyst": {
			Tools: []string{
				"health_check",
				"ping",
				"search_documents",
				"create_database_record",
				"read_database_record",
				"update_database_record",
				"delete_database_record",
				"query_vector_collection",
				"run_sql_query",
			},
			Resources: []ResourceGrant{
				{Pattern: "documents", Actions: []Action{ActionCreate, ActionRead, ActionUpdate}},
				{Pattern: "public.*", Actions: []Action{ActionRead}},
				{Pattern: "embeddings", Actions: []Action{ActionRead}},
			},
		},
		"admin": {
			Tools: []string{"*"},
			Resources: []ResourceGrant{
				{Pattern: "*", Actions: []Action{ActionCreate, ActionRead, ActionUpdate, ActionDelete}},
			},
		},
	}
}
