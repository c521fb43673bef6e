package schema

// CatalogVersion identifies the system catalog revision baked into every
// generated schema.
const CatalogVersion = "2024-07"

// SystemCatalog returns the fixed entities every generated application must
// contain: execution logging, auditing, chat, and user tables. They are
// appended after business models; back-relations are wired by name.
func SystemCatalog() *Schema {
	return &Schema{
		Enums: []Enum{
			{Name: "LogLevel", Values: []string{"DEBUG", "INFO", "WARN", "ERROR"}},
		},
		Models: []Model{
			{
				Name:        "ExecutionLog",
				Description: "Scheduled job execution history",
				Fields: []Field{
					{Name: "id", Type: TypeString, IsID: true, IsRequired: true, Default: "uuid()"},
					{Name: "jobName", Type: TypeString, IsRequired: true},
					{Name: "level", Type: "LogLevel", IsRequired: true, Default: "INFO"},
					{Name: "message", Type: TypeString, IsRequired: true},
					{Name: "durationMs", Type: TypeInt},
					{Name: "createdAt", Type: TypeDateTime, IsRequired: true, Default: "now()"},
				},
			},
			{
				Name:        "AuditLog",
				Description: "Record of every mutating operation",
				Fields: []Field{
					{Name: "id", Type: TypeString, IsID: true, IsRequired: true, Default: "uuid()"},
					{Name: "action", Type: TypeString, IsRequired: true},
					{Name: "entity", Type: TypeString, IsRequired: true},
					{Name: "entityId", Type: TypeString},
					{Name: "user", Type: "AppUser", Relation: &Relation{Fields: []string{"userId"}, References: []string{"id"}}},
					{Name: "userId", Type: TypeString},
					{Name: "createdAt", Type: TypeDateTime, IsRequired: true, Default: "now()"},
				},
			},
			{
				Name:        "ChatSession",
				Description: "Assistant conversation",
				Fields: []Field{
					{Name: "id", Type: TypeString, IsID: true, IsRequired: true, Default: "uuid()"},
					{Name: "title", Type: TypeString},
					{Name: "messages", Type: "ChatMessage", IsList: true},
					{Name: "createdAt", Type: TypeDateTime, IsRequired: true, Default: "now()"},
				},
			},
			{
				Name:        "ChatMessage",
				Description: "Single assistant or user message",
				Fields: []Field{
					{Name: "id", Type: TypeString, IsID: true, IsRequired: true, Default: "uuid()"},
					{Name: "session", Type: "ChatSession", IsRequired: true, Relation: &Relation{Fields: []string{"sessionId"}, References: []string{"id"}}},
					{Name: "sessionId", Type: TypeString, IsRequired: true},
					{Name: "role", Type: TypeString, IsRequired: true},
					{Name: "content", Type: TypeString, IsRequired: true},
					{Name: "createdAt", Type: TypeDateTime, IsRequired: true, Default: "now()"},
				},
			},
			{
				Name:        "AppUser",
				Description: "End user of the generated application",
				Fields: []Field{
					{Name: "id", Type: TypeString, IsID: true, IsRequired: true, Default: "uuid()"},
					{Name: "email", Type: TypeString, IsRequired: true, IsUnique: true},
					{Name: "name", Type: TypeString},
					{Name: "role", Type: TypeString, IsRequired: true, Default: "\"member\""},
					{Name: "auditLogs", Type: "AuditLog", IsList: true},
					{Name: "createdAt", Type: TypeDateTime, IsRequired: true, Default: "now()"},
				},
			},
		},
	}
}
