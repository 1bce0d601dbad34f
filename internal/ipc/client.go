package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, client: rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Install starts a download.
func (c *Client) Install(req InstallRequest) (*TaskResponse, error) {
	return call[TaskResponse](c, "Install", req)
}

// Retry re-runs a failed task.
func (c *Client) Retry(taskID string) (*TaskResponse, error) {
	return call[TaskResponse](c, "Retry", TaskRequest{TaskID: taskID})
}

// Remove aborts and forgets a task.
func (c *Client) Remove(taskID string) (*RemoveResponse, error) {
	return call[RemoveResponse](c, "Remove", TaskRequest{TaskID: taskID})
}

// Progress returns one task snapshot.
func (c *Client) Progress(taskID string) (*TaskResponse, error) {
	return call[TaskResponse](c, "Progress", TaskRequest{TaskID: taskID})
}

// List returns live tasks plus history.
func (c *Client) List(limit int) (*ListResponse, error) {
	return call[ListResponse](c, "List", ListRequest{Limit: limit})
}

// Browsers lists installed browsers.
func (c *Client) Browsers() (*BrowsersResponse, error) {
	return call[BrowsersResponse](c, "Browsers", BrowsersRequest{})
}

// DeleteBrowser uninstalls a browser.
func (c *Client) DeleteBrowser(id string, keepFiles bool) (*DeleteBrowserResponse, error) {
	return call[DeleteBrowserResponse](c, "DeleteBrowser", DeleteBrowserRequest{ID: id, KeepFiles: keepFiles})
}

// RetryHistory returns retry coordinator history for a task.
func (c *Client) RetryHistory(taskID string) (*RetryHistoryResponse, error) {
	return call[RetryHistoryResponse](c, "RetryHistory", TaskRequest{TaskID: taskID})
}

// ResetRetry discards retry coordinator state for a task.
func (c *Client) ResetRetry(taskID string) (*ResetRetryResponse, error) {
	return call[ResetRetryResponse](c, "ResetRetry", TaskRequest{TaskID: taskID})
}

// LogTail returns daemon log events or lines.
func (c *Client) LogTail(req LogTailRequest) (*LogTailResponse, error) {
	return call[LogTailResponse](c, "LogTail", req)
}

// Stop requests daemon shutdown.
func (c *Client) Stop() (*StopResponse, error) {
	return call[StopResponse](c, "Stop", StopRequest{})
}
