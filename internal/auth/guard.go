package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/subitlab-buf/sms4-backend/internal/apperror"
	"github.com/subitlab-buf/sms4-backend/internal/model"
	"github.com/subitlab-buf/sms4-backend/internal/repository"
)

// Guard performs the per-request authorization check: fetch the
// account fresh, verify the token is one of its active sessions, then
// check the required permissions. Nothing is cached between requests,
// so revoked tokens and revoked permissions take effect immediately.
type Guard struct {
	accounts repository.AccountRepository
	tokens   *TokenService
}

func NewGuard(accounts repository.AccountRepository, tokens *TokenService) *Guard {
	return &Guard{accounts: accounts, tokens: tokens}
}

// Authorize verifies the credential and requires every listed
// permission. Returns the freshly loaded account on success.
func (g *Guard) Authorize(ctx context.Context, cred Credential, perms ...model.Permission) (*model.Account, error) {
	tokenAccount, jti, err := g.tokens.Validate(cred.Token)
	if err != nil {
		return nil, apperror.Unauthorized("token is not valid")
	}
	if tokenAccount != cred.Account {
		return nil, apperror.Unauthorized("token does not belong to the account")
	}

	account, err := g.accounts.GetAccount(ctx, cred.Account)
	if err != nil {
		return nil, apperror.Unauthorized("token is not valid")
	}
	if !account.IsTokenValid(jti, time.Now()) {
		return nil, apperror.Unauthorized("token is not valid")
	}

	for _, p := range perms {
		if !account.Tags.ContainsPermission(p) {
			return nil, apperror.Forbidden(fmt.Sprintf("missing permission %s", p))
		}
	}
	return account, nil
}
