package usecase

import (
	"context"
	"errors"

	"madangbot/internal/domain"
	"madangbot/internal/ports"
)

// StaticCredential serves a credential configured out of band.
type StaticCredential domain.Credential

func (s StaticCredential) ActiveCredential(context.Context) (domain.Credential, error) {
	if s.APIKey == "" || s.Name == "" {
		return domain.Credential{}, domain.ErrNoCredential
	}
	return domain.Credential(s), nil
}

// CredentialChain asks each source in order and returns the first active
// credential. Worker and sensor share one chain.
type CredentialChain []ports.CredentialSource

func (c CredentialChain) ActiveCredential(ctx context.Context) (domain.Credential, error) {
	for _, src := range c {
		cred, err := src.ActiveCredential(ctx)
		if err == nil {
			return cred, nil
		}
		if !errors.Is(err, domain.ErrNoCredential) {
			return domain.Credential{}, err
		}
	}
	return domain.Credential{}, domain.ErrNoCredential
}
