package racecontrol

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client calls the race control service. Role and key are sent on every
// call; leave them empty for the read-only procedures.
type Client struct {
	role string
	key  string

	listSessions  *connect.Client[ListSessionsRequest, ListSessionsResponse]
	getRaceData   *connect.Client[GetRaceDataRequest, GetRaceDataResponse]
	addSession    *connect.Client[AddSessionRequest, SessionResponse]
	deleteSession *connect.Client[DeleteSessionRequest, SessionResponse]
	addDriver     *connect.Client[AddDriverRequest, DriverResponse]
	editDriver    *connect.Client[EditDriverRequest, DriverResponse]
	removeDriver  *connect.Client[RemoveDriverRequest, RemoveDriverResponse]
}

// NewClient constructs a client for the service at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL, role, key string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &Client{
		role:          role,
		key:           key,
		listSessions:  connect.NewClient[ListSessionsRequest, ListSessionsResponse](httpClient, baseURL+ListSessionsProcedure, opts...),
		getRaceData:   connect.NewClient[GetRaceDataRequest, GetRaceDataResponse](httpClient, baseURL+GetRaceDataProcedure, opts...),
		addSession:    connect.NewClient[AddSessionRequest, SessionResponse](httpClient, baseURL+AddSessionProcedure, opts...),
		deleteSession: connect.NewClient[DeleteSessionRequest, SessionResponse](httpClient, baseURL+DeleteSessionProcedure, opts...),
		addDriver:     connect.NewClient[AddDriverRequest, DriverResponse](httpClient, baseURL+AddDriverProcedure, opts...),
		editDriver:    connect.NewClient[EditDriverRequest, DriverResponse](httpClient, baseURL+EditDriverProcedure, opts...),
		removeDriver:  connect.NewClient[RemoveDriverRequest, RemoveDriverResponse](httpClient, baseURL+RemoveDriverProcedure, opts...),
	}
}

func request[T any](c *Client, msg *T) *connect.Request[T] {
	req := connect.NewRequest(msg)
	if c.role != "" {
		req.Header().Set(RoleHeader, c.role)
		req.Header().Set(KeyHeader, c.key)
	}
	return req
}

func (c *Client) ListSessions(ctx context.Context) (*ListSessionsResponse, error) {
	resp, err := c.listSessions.CallUnary(ctx, request(c, &ListSessionsRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) GetRaceData(ctx context.Context) (*GetRaceDataResponse, error) {
	resp, err := c.getRaceData.CallUnary(ctx, request(c, &GetRaceDataRequest{}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) AddSession(ctx context.Context, msg *AddSessionRequest) (*SessionResponse, error) {
	resp, err := c.addSession.CallUnary(ctx, request(c, msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) DeleteSession(ctx context.Context, msg *DeleteSessionRequest) (*SessionResponse, error) {
	resp, err := c.deleteSession.CallUnary(ctx, request(c, msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) AddDriver(ctx context.Context, msg *AddDriverRequest) (*DriverResponse, error) {
	resp, err := c.addDriver.CallUnary(ctx, request(c, msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) EditDriver(ctx context.Context, msg *EditDriverRequest) (*DriverResponse, error) {
	resp, err := c.editDriver.CallUnary(ctx, request(c, msg))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) RemoveDriver(ctx context.Context, msg *RemoveDriverRequest) error {
	_, err := c.removeDriver.CallUnary(ctx, request(c, msg))
	return err
}
