package officialaccount

import (
	"context"
	"fmt"

	"github.com/ShinyNito/wechatkit/core"
)

type TicketType string

const (
	TicketTypeJSAPI  TicketType = "jsapi"
	TicketTypeWxCard TicketType = "wx_card"
)

type GetTicketRequest struct {
	Type TicketType
}

type GetTicketResponse struct {
	Ticket string
}

// credentialName 将 ticket 类型映射为凭证仓库中的名称
func (t TicketType) credentialName() (string, error) {
	switch t {
	case "", TicketTypeJSAPI:
		return core.CredentialJSAPITicket, nil
	case TicketTypeWxCard:
		return core.CredentialCardTicket, nil
	default:
		return "", fmt.Errorf("unsupported ticket type %q", t)
	}
}

// GetTicket 获取 jsapi_ticket 或 wx_card ticket，优先使用内存与缓存
func (c *Client) GetTicket(ctx context.Context, req GetTicketRequest) (*GetTicketResponse, error) {
	name, err := req.Type.credentialName()
	if err != nil {
		return nil, err
	}
	ticket, err := c.kit.Store.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return &GetTicketResponse{Ticket: ticket}, nil
}

// RefreshTicket 强制刷新 ticket
func (c *Client) RefreshTicket(ctx context.Context, ticketType TicketType) (*GetTicketResponse, error) {
	name, err := ticketType.credentialName()
	if err != nil {
		return nil, err
	}
	ticket, err := c.kit.Store.Refresh(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("refresh ticket: %w", err)
	}
	return &GetTicketResponse{Ticket: ticket}, nil
}
