package platform

import (
	"context"
	"fmt"

	"github.com/Flagro/holosophos-erc3/pkg/session"
)

var _ session.Platform = (*Client)(nil)

func (c *Client) StartSession(ctx context.Context, req session.StartRequest) (string, error) {
	var resp struct {
		SessionID string `json:"session_id"`
	}
	if err := c.post(ctx, "/core/start_session", req, &resp); err != nil {
		return "", fmt.Errorf("start session: %w", err)
	}
	if resp.SessionID == "" {
		return "", fmt.Errorf("start session: platform returned no session id")
	}
	c.logger.Info("🚀 Started %s session %s in workspace %s", req.Benchmark, resp.SessionID, req.Workspace)
	return resp.SessionID, nil
}

func (c *Client) SessionStatus(ctx context.Context, sessionID string) (*session.Status, error) {
	var status session.Status
	if err := c.post(ctx, "/core/session_status", map[string]string{"session_id": sessionID}, &status); err != nil {
		return nil, fmt.Errorf("session status: %w", err)
	}
	return &status, nil
}

func (c *Client) StartTask(ctx context.Context, task session.Task) error {
	if err := c.post(ctx, "/core/start_task", map[string]string{"task_id": task.TaskID}, nil); err != nil {
		return fmt.Errorf("start task %s: %w", task.TaskID, err)
	}
	return nil
}

func (c *Client) CompleteTask(ctx context.Context, task session.Task) (*session.TaskResult, error) {
	var result session.TaskResult
	if err := c.post(ctx, "/core/complete_task", map[string]string{"task_id": task.TaskID}, &result); err != nil {
		return nil, fmt.Errorf("complete task %s: %w", task.TaskID, err)
	}
	return &result, nil
}

func (c *Client) SubmitSession(ctx context.Context, sessionID string) error {
	if err := c.post(ctx, "/core/submit_session", map[string]string{"session_id": sessionID}, nil); err != nil {
		return fmt.Errorf("submit session %s: %w", sessionID, err)
	}
	return nil
}
