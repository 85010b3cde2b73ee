package mangopay

import (
	"context"
	"net/http"
)

func (c *Client) GetPayIn(ctx context.Context, id ID) (*PayIn, error) {
	var payIn PayIn
	if err := c.Do(ctx, http.MethodGet, idPath("/payins/%s", id), nil, nil, &payIn); err != nil {
		return nil, err
	}
	return &payIn, nil
}

func (c *Client) CreateCardDirectPayIn(ctx context.Context, in CardDirectPayIn) (*PayIn, error) {
	var payIn PayIn
	if err := c.Do(ctx, http.MethodPost, "/payins/card/direct", nil, in, &payIn); err != nil {
		return nil, err
	}
	return &payIn, nil
}

func (c *Client) CreatePreauthorizedPayIn(ctx context.Context, in PreauthorizedPayIn) (*PayIn, error) {
	var payIn PayIn
	if err := c.Do(ctx, http.MethodPost, "/payins/PreAuthorized/direct", nil, in, &payIn); err != nil {
		return nil, err
	}
	return &payIn, nil
}

// CreatePayInRefund refunds the full pay-in on behalf of author.
func (c *Client) CreatePayInRefund(ctx context.Context, payInID ID, in Refund) (*Refund, error) {
	var refund Refund
	if err := c.Do(ctx, http.MethodPost, idPath("/payins/%s/refunds", payInID), nil, in, &refund); err != nil {
		return nil, err
	}
	return &refund, nil
}

func (c *Client) GetPreAuthorization(ctx context.Context, id ID) (*PreAuthorization, error) {
	var preauth PreAuthorization
	if err := c.Do(ctx, http.MethodGet, idPath("/preauthorizations/%s", id), nil, nil, &preauth); err != nil {
		return nil, err
	}
	return &preauth, nil
}

func (c *Client) CreateCardPreAuthorization(ctx context.Context, in PreAuthorization) (*PreAuthorization, error) {
	var preauth PreAuthorization
	if err := c.Do(ctx, http.MethodPost, "/preauthorizations/card/direct", nil, in, &preauth); err != nil {
		return nil, err
	}
	return &preauth, nil
}

func (c *Client) CreateTransfer(ctx context.Context, in Transfer) (*Transfer, error) {
	var transfer Transfer
	if err := c.Do(ctx, http.MethodPost, "/transfers", nil, in, &transfer); err != nil {
		return nil, err
	}
	return &transfer, nil
}
