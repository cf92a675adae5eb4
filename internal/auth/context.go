package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxAccountID
	ctxRole
)

var ErrNoIdentity = errors.New("auth: identity not in context")

func WithIdentity(ctx context.Context, userID, accountID, role string) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxAccountID, accountID)
	ctx = context.WithValue(ctx, ctxRole, role)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	return stringValue(ctx, ctxUserID)
}

func AccountID(ctx context.Context) (string, error) {
	return stringValue(ctx, ctxAccountID)
}

func Role(ctx context.Context) (string, error) {
	return stringValue(ctx, ctxRole)
}

func stringValue(ctx context.Context, k ctxKey) (string, error) {
	if s, ok := ctx.Value(k).(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoIdentity
}
