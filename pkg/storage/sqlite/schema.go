package sqlite

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	tracesTableName = "agent_traces"
	filesTableName  = "agent_trace_files"
	idsTableName    = "agent_trace_ids"
)

var (
	// tracesColumns holds one row per stored trace. body is the trace JSON.
	tracesColumns = []*schema.Column{
		{Name: "pk", Type: field.TypeInt, Increment: true},
		{Name: "id", Type: field.TypeString},
		{Name: "revision", Type: field.TypeString},
		{Name: "position", Type: field.TypeInt},
		{Name: "ts", Type: field.TypeInt64},
		{Name: "tool_name", Type: field.TypeString, Default: ""},
		{Name: "body", Type: field.TypeString, Size: 2147483647},
	}
	tracesTable = &schema.Table{
		Name:       tracesTableName,
		Columns:    tracesColumns,
		PrimaryKey: []*schema.Column{tracesColumns[0]},
		Indexes: []*schema.Index{
			{Name: "agenttrace_revision_id", Unique: true, Columns: []*schema.Column{tracesColumns[2], tracesColumns[1]}},
			{Name: "agenttrace_revision_position", Columns: []*schema.Column{tracesColumns[2], tracesColumns[3]}},
			{Name: "agenttrace_ts", Columns: []*schema.Column{tracesColumns[4]}},
		},
	}

	// filesColumns indexes each trace by the paths it touches.
	filesColumns = []*schema.Column{
		{Name: "trace_pk", Type: field.TypeInt},
		{Name: "path", Type: field.TypeString},
	}
	filesTable = &schema.Table{
		Name:       filesTableName,
		Columns:    filesColumns,
		PrimaryKey: []*schema.Column{filesColumns[0], filesColumns[1]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "agent_trace_files_agent_traces_files",
				Columns:    []*schema.Column{filesColumns[0]},
				RefColumns: []*schema.Column{tracesColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
	}

	// idsColumns maps a trace's own id and every id consolidated into it
	// back to the stored row.
	idsColumns = []*schema.Column{
		{Name: "trace_pk", Type: field.TypeInt},
		{Name: "id", Type: field.TypeString},
	}
	idsTable = &schema.Table{
		Name:       idsTableName,
		Columns:    idsColumns,
		PrimaryKey: []*schema.Column{idsColumns[0], idsColumns[1]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "agent_trace_ids_agent_traces_ids",
				Columns:    []*schema.Column{idsColumns[0]},
				RefColumns: []*schema.Column{tracesColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{Name: "agenttraceid_id", Columns: []*schema.Column{idsColumns[1]}},
		},
	}

	// tables lists every table in creation order.
	tables = []*schema.Table{tracesTable, filesTable, idsTable}
)

func init() {
	filesTable.ForeignKeys[0].RefTable = tracesTable
	idsTable.ForeignKeys[0].RefTable = tracesTable
}
