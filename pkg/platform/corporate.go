package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/Flagro/holosophos-erc3/pkg/corporate"
	"github.com/Flagro/holosophos-erc3/pkg/dispatch"
	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
)

// corporateAPI sends corporate actions of one task to the platform.
type corporateAPI struct {
	c      *Client
	taskID string
}

var _ corporate.API = (*corporateAPI)(nil)

// Corporate returns the corporate API bound to taskID.
func (c *Client) Corporate(taskID string) corporate.API {
	return &corporateAPI{c: c, taskID: taskID}
}

// reply is a response that keeps the body it was decoded from.
type reply[Resp any] interface {
	*Resp
	SetRawJSON(raw json.RawMessage)
}

// call POSTs req to /corporate/{task_id}/{tool}. Client errors carrying a detail are
// domain failures and become *dispatch.ApplicationError; everything else stays a
// plain error. The reply body is kept verbatim on the response.
func call[Resp any, R reply[Resp]](ctx context.Context, api *corporateAPI, req nextstep.Action) (*Resp, error) {
	path := fmt.Sprintf("/corporate/%s/%s", url.PathEscape(api.taskID), req.Kind())
	var raw json.RawMessage
	if err := api.c.post(ctx, path, req, &raw); err != nil {
		if apiErr, ok := IsAPIError(err); ok && apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError {
			detail := apiErr.Detail
			if detail == "" {
				detail = apiErr.Message
			}
			code := apiErr.Code
			if code == "" {
				code = apiErr.Message
			}
			return nil, &dispatch.ApplicationError{Code: code, Detail: detail}
		}
		return nil, fmt.Errorf("%s: %w", req.Kind(), err)
	}

	var resp Resp
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("%s: failed to decode response: %w", req.Kind(), err)
		}
		R(&resp).SetRawJSON(raw)
	}
	return &resp, nil
}

func (a *corporateAPI) ListEmployees(ctx context.Context, req *corporate.ListEmployeesRequest) (*corporate.ListEmployeesResponse, error) {
	return call[corporate.ListEmployeesResponse](ctx, a, req)
}

func (a *corporateAPI) GetEmployeeDetails(ctx context.Context, req *corporate.GetEmployeeDetailsRequest) (*corporate.GetEmployeeDetailsResponse, error) {
	return call[corporate.GetEmployeeDetailsResponse](ctx, a, req)
}

func (a *corporateAPI) UpdateEmployeeStatus(ctx context.Context, req *corporate.UpdateEmployeeStatusRequest) (*corporate.UpdateEmployeeStatusResponse, error) {
	return call[corporate.UpdateEmployeeStatusResponse](ctx, a, req)
}

func (a *corporateAPI) CreateProject(ctx context.Context, req *corporate.CreateProjectRequest) (*corporate.CreateProjectResponse, error) {
	return call[corporate.CreateProjectResponse](ctx, a, req)
}

func (a *corporateAPI) ListProjects(ctx context.Context, req *corporate.ListProjectsRequest) (*corporate.ListProjectsResponse, error) {
	return call[corporate.ListProjectsResponse](ctx, a, req)
}

func (a *corporateAPI) AssignTask(ctx context.Context, req *corporate.AssignTaskRequest) (*corporate.AssignTaskResponse, error) {
	return call[corporate.AssignTaskResponse](ctx, a, req)
}

func (a *corporateAPI) GetBudgetReport(ctx context.Context, req *corporate.GetBudgetReportRequest) (*corporate.GetBudgetReportResponse, error) {
	return call[corporate.GetBudgetReportResponse](ctx, a, req)
}
