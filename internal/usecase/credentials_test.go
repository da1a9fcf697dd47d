package usecase

import (
	"context"
	"errors"
	"testing"

	"madangbot/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCredentialChain(t *testing.T) {
	ctx := context.Background()
	static := StaticCredential{Name: "bot", APIKey: "k"}

	cred, err := CredentialChain{fakeCreds{err: domain.ErrNoCredential}, static}.ActiveCredential(ctx)
	require.NoError(t, err)
	assert.Equal(t, "bot", cred.Name)

	_, err = CredentialChain{fakeCreds{err: errors.New("db down")}, static}.ActiveCredential(ctx)
	assert.ErrorContains(t, err, "db down")

	_, err = CredentialChain{StaticCredential{Name: "bot"}}.ActiveCredential(ctx)
	assert.ErrorIs(t, err, domain.ErrNoCredential)
}
