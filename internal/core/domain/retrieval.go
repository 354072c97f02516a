package domain

import "strings"

// Index field names shared by every vector backend.
const (
	FieldChatType   = "chatType"
	FieldDepartment = "deptName"
)

type FilterClause struct {
	Field string
	Value string
}

// FilterExpression is a conjunction of equality clauses.
type FilterExpression struct {
	Clauses []FilterClause
}

func NewDocumentFilter() FilterExpression {
	return FilterExpression{Clauses: []FilterClause{{Field: FieldChatType, Value: ChatTypeDocument}}}
}

// And returns a copy of the expression with one more clause.
func (f FilterExpression) And(field, value string) FilterExpression {
	clauses := make([]FilterClause, 0, len(f.Clauses)+1)
	clauses = append(clauses, f.Clauses...)
	clauses = append(clauses, FilterClause{Field: field, Value: value})
	return FilterExpression{Clauses: clauses}
}

func (f FilterExpression) Value(field string) (string, bool) {
	for _, clause := range f.Clauses {
		if clause.Field == field {
			return clause.Value, true
		}
	}
	return "", false
}

// OData renders the expression in the `a eq 'x' and b eq 'y'` form.
func (f FilterExpression) OData() string {
	parts := make([]string, 0, len(f.Clauses))
	for _, clause := range f.Clauses {
		parts = append(parts, clause.Field+" eq '"+strings.ReplaceAll(clause.Value, "'", "''")+"'")
	}
	return strings.Join(parts, " and ")
}

func (f FilterExpression) String() string {
	return f.OData()
}

type RetrievedResult struct {
	ID              string  `json:"id"`
	OwnerID         string  `json:"owner_id"`
	Content         string  `json:"content"`
	SourceFileLabel string  `json:"source_file_label"`
	ChatType        string  `json:"chat_type"`
	DepartmentLabel string  `json:"department_label,omitempty"`
	Score           float64 `json:"score"`
}

type Department struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AllDepartments widens retrieval to every department.
const AllDepartments = "all"
