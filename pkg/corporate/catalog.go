// Package corporate is the action catalog of the corporate benchmark: employee
// directory, projects, task assignment and budget reports.
package corporate

import (
	"context"
	"fmt"

	"github.com/Flagro/holosophos-erc3/pkg/dispatch"
	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
	"github.com/Flagro/holosophos-erc3/pkg/tools"
)

// API performs corporate actions for one task. Domain failures are returned as
// *dispatch.ApplicationError.
type API interface {
	ListEmployees(ctx context.Context, req *ListEmployeesRequest) (*ListEmployeesResponse, error)
	GetEmployeeDetails(ctx context.Context, req *GetEmployeeDetailsRequest) (*GetEmployeeDetailsResponse, error)
	UpdateEmployeeStatus(ctx context.Context, req *UpdateEmployeeStatusRequest) (*UpdateEmployeeStatusResponse, error)
	CreateProject(ctx context.Context, req *CreateProjectRequest) (*CreateProjectResponse, error)
	ListProjects(ctx context.Context, req *ListProjectsRequest) (*ListProjectsResponse, error)
	AssignTask(ctx context.Context, req *AssignTaskRequest) (*AssignTaskResponse, error)
	GetBudgetReport(ctx context.Context, req *GetBudgetReportRequest) (*GetBudgetReportResponse, error)
}

type handler func(ctx context.Context, api API, action nextstep.Action) (any, error)

// bind adapts an API method expression to a handler. The request type of the method
// fixes the action type the handler accepts.
func bind[Req nextstep.Action, Resp any](call func(API, context.Context, Req) (Resp, error)) handler {
	return func(ctx context.Context, api API, action nextstep.Action) (any, error) {
		req, ok := action.(Req)
		if !ok {
			return nil, fmt.Errorf("%w: %s sent as %T", dispatch.ErrUnhandledAction, action.Kind(), action)
		}
		resp, err := call(api, ctx, req)
		if err != nil {
			return nil, err
		}
		return resp, nil
	}
}

type binding struct {
	variant nextstep.Variant
	handle  handler
}

func optionalString(description string) *tools.Property {
	return tools.String(description).Optional()
}

//nolint:gochecknoglobals // immutable variant table
var bindings = []binding{
	{
		variant: nextstep.Variant{
			Kind:        KindListEmployees,
			Description: "List employees, optionally filtered by department and status",
			Fields: []tools.Field{
				{Name: "department", Property: optionalString("Department name, null for all")},
				{Name: "status", Property: tools.Enum("Employee status, null for any", EmployeeStatuses()...).Optional()},
				{Name: "offset", Property: tools.Integer("Number of records to skip")},
				{Name: "limit", Property: tools.Integer("Page size, 0 for the server default")},
			},
			New: func() nextstep.Action { return &ListEmployeesRequest{} },
		},
		handle: bind(API.ListEmployees),
	},
	{
		variant: nextstep.Variant{
			Kind:        KindGetEmployeeDetails,
			Description: "Get the full record of one employee",
			Fields: []tools.Field{
				{Name: "employee_id", Property: tools.String("")},
			},
			New: func() nextstep.Action { return &GetEmployeeDetailsRequest{} },
		},
		handle: bind(API.GetEmployeeDetails),
	},
	{
		variant: nextstep.Variant{
			Kind:        KindUpdateEmployeeStatus,
			Description: "Change an employee's status",
			Fields: []tools.Field{
				{Name: "employee_id", Property: tools.String("")},
				{Name: "status", Property: tools.Enum("New status", EmployeeStatuses()...)},
				{Name: "reason", Property: optionalString("Why the status changes")},
			},
			New: func() nextstep.Action { return &UpdateEmployeeStatusRequest{} },
		},
		handle: bind(API.UpdateEmployeeStatus),
	},
	{
		variant: nextstep.Variant{
			Kind:        KindCreateProject,
			Description: "Create a project for a department",
			Fields: []tools.Field{
				{Name: "name", Property: tools.String("")},
				{Name: "description", Property: tools.String("")},
				{Name: "department", Property: tools.String("")},
				{Name: "budget", Property: tools.Number("Budget in the company currency")},
				{Name: "lead_id", Property: optionalString("Employee id of the project lead")},
			},
			New: func() nextstep.Action { return &CreateProjectRequest{} },
		},
		handle: bind(API.CreateProject),
	},
	{
		variant: nextstep.Variant{
			Kind:        KindListProjects,
			Description: "List projects, optionally filtered by department and status",
			Fields: []tools.Field{
				{Name: "department", Property: optionalString("Department name, null for all")},
				{Name: "status", Property: tools.Enum("Project status, null for any", ProjectStatuses()...).Optional()},
			},
			New: func() nextstep.Action { return &ListProjectsRequest{} },
		},
		handle: bind(API.ListProjects),
	},
	{
		variant: nextstep.Variant{
			Kind:        KindAssignTask,
			Description: "Assign a task in a project to an employee",
			Fields: []tools.Field{
				{Name: "project_id", Property: tools.String("")},
				{Name: "employee_id", Property: tools.String("")},
				{Name: "title", Property: tools.String("")},
				{Name: "description", Property: optionalString("")},
				{Name: "estimated_hours", Property: tools.Number("").Optional()},
			},
			New: func() nextstep.Action { return &AssignTaskRequest{} },
		},
		handle: bind(API.AssignTask),
	},
	{
		variant: nextstep.Variant{
			Kind:        KindGetBudgetReport,
			Description: "Get the budget report of a department",
			Fields: []tools.Field{
				{Name: "department", Property: tools.String("")},
				{Name: "period", Property: optionalString("Reporting period such as 2025-Q1, null for current")},
			},
			New: func() nextstep.Action { return &GetBudgetReportRequest{} },
		},
		handle: bind(API.GetBudgetReport),
	},
}

// Catalog lists the corporate action variants.
type Catalog struct{}

func (Catalog) Variants() []nextstep.Variant {
	out := make([]nextstep.Variant, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, b.variant)
	}
	return out
}

// Executor routes corporate actions to an API.
type Executor struct {
	api      API
	handlers map[nextstep.ActionKind]handler
}

// NewExecutor binds every corporate action to api.
func NewExecutor(api API) *Executor {
	handlers := make(map[nextstep.ActionKind]handler, len(bindings))
	for _, b := range bindings {
		handlers[b.variant.Kind] = b.handle
	}
	return &Executor{api: api, handlers: handlers}
}

// Execute implements dispatch.Executor.
func (e *Executor) Execute(ctx context.Context, action nextstep.Action) (any, error) {
	h, ok := e.handlers[action.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", dispatch.ErrUnhandledAction, action.Kind())
	}
	return h(ctx, e.api, action)
}

// Kinds implements dispatch.KindLister.
func (e *Executor) Kinds() []nextstep.ActionKind {
	kinds := make([]nextstep.ActionKind, 0, len(bindings))
	for _, b := range bindings {
		kinds = append(kinds, b.variant.Kind)
	}
	return kinds
}
