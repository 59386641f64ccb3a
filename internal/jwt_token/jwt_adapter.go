package jwttoken

import (
	"fmt"

	id "credlife/pkg/domain"
	"credlife/pkg/requestcontext"
)

// ToActor converts validated claims into the request actor.
func ToActor(claims *ActorClaims) (requestcontext.AuthenticatedActor, error) {
	actorID, err := id.ParseActorID(claims.Subject)
	if err != nil || actorID.IsNil() {
		return requestcontext.AuthenticatedActor{}, fmt.Errorf("invalid subject %q", claims.Subject)
	}
	role := id.Role(claims.Role)
	if !role.IsValid() {
		return requestcontext.AuthenticatedActor{}, fmt.Errorf("invalid role %q", claims.Role)
	}
	return requestcontext.AuthenticatedActor{ID: actorID, Role: role}, nil
}

// JWTServiceAdapter lets the auth middleware validate tokens without
// depending on this package.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (requestcontext.AuthenticatedActor, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return requestcontext.AuthenticatedActor{}, err
	}
	return ToActor(claims)
}
