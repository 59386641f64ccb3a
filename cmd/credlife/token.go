package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	jwttoken "credlife/internal/jwt_token"
	"credlife/internal/platform/config"
	id "credlife/pkg/domain"
)

var tokenCommand = &cli.Command{
	Name:  "token",
	Usage: "Issue a bearer token for local testing",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "actor-id", Usage: "Actor ID (UUID); generated when empty. Owners use their owner ID."},
		&cli.StringFlag{Name: "role", Value: string(id.RoleOwner), Usage: "owner, reviewer or admin"},
		&cli.DurationFlag{Name: "ttl", Usage: "Token lifetime; defaults to the configured TOKEN_TTL"},
		&cli.BoolFlag{Name: "json", Usage: "Print the token with its claims as JSON"},
	},
	Action: issueToken,
}

type tokenOutput struct {
	Token     string    `json:"token"`
	Type      string    `json:"type"`
	ActorID   string    `json:"actor_id"`
	Role      string    `json:"role"`
	ExpiresAt time.Time `json:"expires_at"`
}

func issueToken(cCtx *cli.Context) error {
	cfg, err := config.Load(cCtx.String("env-file"))
	if err != nil {
		return err
	}

	role := id.Role(cCtx.String("role"))
	if !role.IsValid() || role == id.RoleSystem {
		return fmt.Errorf("unsupported role %q", role)
	}

	actorID := id.ActorID(id.NewOwnerID())
	if raw := cCtx.String("actor-id"); raw != "" {
		if actorID, err = id.ParseActorID(raw); err != nil {
			return err
		}
	}

	ttl := cfg.Auth.TokenTTL
	if d := cCtx.Duration("ttl"); d > 0 {
		ttl = d
	}
	svc := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.JWTIssuer, cfg.Auth.JWTAudience, ttl)
	svc.SetEnv(cfg.Server.Environment)

	tok, expiresAt, err := svc.IssueToken(cCtx.Context, actorID, role)
	if err != nil {
		return err
	}

	if !cCtx.Bool("json") {
		fmt.Println(tok)
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tokenOutput{
		Token:     tok,
		Type:      "Bearer",
		ActorID:   actorID.String(),
		Role:      string(role),
		ExpiresAt: expiresAt,
	})
}
