package mangopay

import (
	"context"
	"net/http"
	"net/url"
)

const walletPageSize = "100"

func (c *Client) GetUser(ctx context.Context, id ID) (*User, error) {
	var user User
	if err := c.Do(ctx, http.MethodGet, idPath("/users/%s", id), nil, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) CreateNaturalUser(ctx context.Context, in NaturalUser) (*User, error) {
	var user User
	if err := c.Do(ctx, http.MethodPost, "/users/natural", nil, in, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) CreateLegalUser(ctx context.Context, in LegalUser) (*User, error) {
	var user User
	if err := c.Do(ctx, http.MethodPost, "/users/legal", nil, in, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserWallets lists the first page of a user's wallets, large enough for
// the operator accounts this gateway resolves.
func (c *Client) GetUserWallets(ctx context.Context, userID ID) ([]Wallet, error) {
	query := url.Values{}
	query.Set("per_page", walletPageSize)
	var wallets []Wallet
	if err := c.Do(ctx, http.MethodGet, idPath("/users/%s/wallets", userID), query, nil, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

func (c *Client) CreateWallet(ctx context.Context, in Wallet) (*Wallet, error) {
	var wallet Wallet
	if err := c.Do(ctx, http.MethodPost, "/wallets", nil, in, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (c *Client) GetWallet(ctx context.Context, id ID) (*Wallet, error) {
	var wallet Wallet
	if err := c.Do(ctx, http.MethodGet, idPath("/wallets/%s", id), nil, nil, &wallet); err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (c *Client) GetCard(ctx context.Context, id ID) (*Card, error) {
	var card Card
	if err := c.Do(ctx, http.MethodGet, idPath("/cards/%s", id), nil, nil, &card); err != nil {
		return nil, err
	}
	return &card, nil
}
