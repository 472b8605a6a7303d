// internal/wsclient/methods.go
package wsclient

import (
	"context"
	"fmt"

	"github.com/erilali/chatwire/internal/protocol"
)

func expect[R protocol.MethodResult](res protocol.MethodResult, err error) (R, error) {
	var zero R
	if err != nil {
		return zero, err
	}
	r, ok := res.(R)
	if !ok {
		return zero, fmt.Errorf("wsclient: unexpected result %T", res)
	}
	return r, nil
}

func (c *Client) SignUp(ctx context.Context, login, password string) error {
	_, err := expect[protocol.SignUpResult](c.Call(ctx, protocol.SignUp{Login: login, Password: password}))
	return err
}

// LogIn authenticates the connection. The issued token is used for every
// following call.
func (c *Client) LogIn(ctx context.Context, login, password string) (string, error) {
	res, err := expect[protocol.LogInResult](c.Call(ctx, protocol.LogIn{Login: login, Password: password}))
	if err != nil {
		return "", err
	}
	c.SetToken(res.SessionToken)
	return res.SessionToken, nil
}

func (c *Client) SendPrivateMessage(ctx context.Context, to protocol.Peer, text string) error {
	_, err := expect[protocol.SendPrivateMessageResult](c.Call(ctx, protocol.SendPrivateMessage{Message: text, Recipient: to}))
	return err
}

func (c *Client) GetPrivateChatMessages(ctx context.Context, with protocol.Peer) ([]protocol.PrivateMessage, error) {
	res, err := expect[protocol.GetPrivateChatMessagesResult](c.Call(ctx, protocol.GetPrivateChatMessages{Counterparty: with}))
	return res.Messages, err
}

// GetUsers is only available on v1 connections.
func (c *Client) GetUsers(ctx context.Context) ([]protocol.User, error) {
	res, err := expect[protocol.GetUsersResult](c.Call(ctx, protocol.GetUsers{}))
	return res.Users, err
}

func (c *Client) GetAvailableChats(ctx context.Context) (protocol.GetAvailableChatsResult, error) {
	return expect[protocol.GetAvailableChatsResult](c.Call(ctx, protocol.GetAvailableChats{}))
}

func (c *Client) CreateChat(ctx context.Context, title string, members ...protocol.Peer) (protocol.Chat, error) {
	res, err := expect[protocol.CreateChatResult](c.Call(ctx, protocol.CreateChat{Title: title, Members: members}))
	return res.Chat, err
}

func (c *Client) SendChatMessage(ctx context.Context, chatID int32, text string) error {
	_, err := expect[protocol.SendChatMessageResult](c.Call(ctx, protocol.SendChatMessage{Message: text, ChatID: chatID}))
	return err
}

func (c *Client) GetChatMessages(ctx context.Context, chatID int32) ([]protocol.ChatMessage, error) {
	res, err := expect[protocol.GetChatMessagesResult](c.Call(ctx, protocol.GetChatMessages{ChatID: chatID}))
	return res.Messages, err
}
