package corporate

import (
	"encoding/json"
	"fmt"

	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
)

// Action kinds of the corporate benchmark.
const (
	KindListEmployees        nextstep.ActionKind = "list_employees"
	KindGetEmployeeDetails   nextstep.ActionKind = "get_employee_details"
	KindUpdateEmployeeStatus nextstep.ActionKind = "update_employee_status"
	KindCreateProject        nextstep.ActionKind = "create_project"
	KindListProjects         nextstep.ActionKind = "list_projects"
	KindAssignTask           nextstep.ActionKind = "assign_task"
	KindGetBudgetReport      nextstep.ActionKind = "get_budget_report"
)

// Employee statuses accepted by update_employee_status.
const (
	StatusActive     = "active"
	StatusOnLeave    = "on_leave"
	StatusTerminated = "terminated"
)

// EmployeeStatuses lists the valid employee statuses.
func EmployeeStatuses() []string {
	return []string{StatusActive, StatusOnLeave, StatusTerminated}
}

// Project statuses.
const (
	ProjectPlanned   = "planned"
	ProjectActive    = "active"
	ProjectCompleted = "completed"
)

// ProjectStatuses lists the valid project statuses.
func ProjectStatuses() []string {
	return []string{ProjectPlanned, ProjectActive, ProjectCompleted}
}

func oneOf(field, value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", field, allowed, value)
}

func oneOfOptional(field string, value *string, allowed []string) error {
	if value == nil {
		return nil
	}
	return oneOf(field, *value, allowed)
}

// ListEmployeesRequest filters the employee directory. Nil filters match everything.
type ListEmployeesRequest struct {
	Department *string `json:"department,omitempty"`
	Status     *string `json:"status,omitempty"`
	Offset     int     `json:"offset"`
	Limit      int     `json:"limit"`
}

func (*ListEmployeesRequest) Kind() nextstep.ActionKind { return KindListEmployees }

func (r *ListEmployeesRequest) Validate() error {
	if r.Offset < 0 || r.Limit < 0 {
		return fmt.Errorf("offset and limit cannot be negative")
	}
	return oneOfOptional("status", r.Status, EmployeeStatuses())
}

// Reply keeps the body a response was decoded from. When set, it is what the model
// sees instead of the re-encoded struct, so fields the struct does not model survive.
type Reply struct {
	raw json.RawMessage
}

// SetRawJSON records the body the response was decoded from.
func (r *Reply) SetRawJSON(raw json.RawMessage) { r.raw = raw }

// RawJSON implements dispatch.RawResult.
func (r *Reply) RawJSON() json.RawMessage { return r.raw }

type EmployeeSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Department string `json:"department,omitempty"`
	Title      string `json:"title,omitempty"`
	Status     string `json:"status,omitempty"`
}

type ListEmployeesResponse struct {
	Reply
	Employees  []EmployeeSummary `json:"employees"`
	Total      int               `json:"total"`
	NextOffset int               `json:"next_offset,omitempty"`
}

type GetEmployeeDetailsRequest struct {
	EmployeeID string `json:"employee_id"`
}

func (*GetEmployeeDetailsRequest) Kind() nextstep.ActionKind { return KindGetEmployeeDetails }

type Employee struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Email      string   `json:"email,omitempty"`
	Department string   `json:"department,omitempty"`
	Title      string   `json:"title,omitempty"`
	Status     string   `json:"status,omitempty"`
	ManagerID  string   `json:"manager_id,omitempty"`
	Salary     *float64 `json:"salary,omitempty"`
	Skills     []string `json:"skills,omitempty"`
	Projects   []string `json:"projects,omitempty"`
}

type GetEmployeeDetailsResponse struct {
	Reply
	Employee Employee `json:"employee"`
}

type UpdateEmployeeStatusRequest struct {
	EmployeeID string  `json:"employee_id"`
	Status     string  `json:"status"`
	Reason     *string `json:"reason,omitempty"`
}

func (*UpdateEmployeeStatusRequest) Kind() nextstep.ActionKind { return KindUpdateEmployeeStatus }

func (r *UpdateEmployeeStatusRequest) Validate() error {
	return oneOf("status", r.Status, EmployeeStatuses())
}

type UpdateEmployeeStatusResponse struct {
	Reply
	EmployeeID     string `json:"employee_id"`
	PreviousStatus string `json:"previous_status,omitempty"`
	Status         string `json:"status"`
}

type CreateProjectRequest struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Department  string  `json:"department"`
	Budget      float64 `json:"budget"`
	LeadID      *string `json:"lead_id,omitempty"`
}

func (*CreateProjectRequest) Kind() nextstep.ActionKind { return KindCreateProject }

func (r *CreateProjectRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if r.Budget < 0 {
		return fmt.Errorf("budget cannot be negative")
	}
	return nil
}

type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Department  string   `json:"department,omitempty"`
	Status      string   `json:"status,omitempty"`
	Budget      float64  `json:"budget"`
	Spent       float64  `json:"spent"`
	LeadID      string   `json:"lead_id,omitempty"`
	Members     []string `json:"members,omitempty"`
}

type CreateProjectResponse struct {
	Reply
	Project Project `json:"project"`
}

type ListProjectsRequest struct {
	Department *string `json:"department,omitempty"`
	Status     *string `json:"status,omitempty"`
}

func (*ListProjectsRequest) Kind() nextstep.ActionKind { return KindListProjects }

func (r *ListProjectsRequest) Validate() error {
	return oneOfOptional("status", r.Status, ProjectStatuses())
}

type ListProjectsResponse struct {
	Reply
	Projects []Project `json:"projects"`
	Total    int       `json:"total"`
}

type AssignTaskRequest struct {
	ProjectID      string   `json:"project_id"`
	EmployeeID     string   `json:"employee_id"`
	Title          string   `json:"title"`
	Description    *string  `json:"description,omitempty"`
	EstimatedHours *float64 `json:"estimated_hours,omitempty"`
}

func (*AssignTaskRequest) Kind() nextstep.ActionKind { return KindAssignTask }

type AssignTaskResponse struct {
	Reply
	TaskID     string `json:"task_id"`
	ProjectID  string `json:"project_id"`
	EmployeeID string `json:"employee_id"`
	Status     string `json:"status,omitempty"`
}

type GetBudgetReportRequest struct {
	Department string  `json:"department"`
	Period     *string `json:"period,omitempty"`
}

func (*GetBudgetReportRequest) Kind() nextstep.ActionKind { return KindGetBudgetReport }

type ProjectBudget struct {
	ProjectID string  `json:"project_id"`
	Name      string  `json:"name,omitempty"`
	Budget    float64 `json:"budget"`
	Spent     float64 `json:"spent"`
}

type GetBudgetReportResponse struct {
	Reply
	Department string          `json:"department"`
	Period     string          `json:"period,omitempty"`
	Allocated  float64         `json:"allocated"`
	Spent      float64         `json:"spent"`
	Remaining  float64         `json:"remaining"`
	Currency   string          `json:"currency,omitempty"`
	Projects   []ProjectBudget `json:"projects,omitempty"`
}
