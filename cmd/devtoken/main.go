package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/freelance-marketplace/contract-workflow/internal/auth"
	"github.com/freelance-marketplace/contract-workflow/internal/config"
	"github.com/freelance-marketplace/contract-workflow/internal/models"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// devtoken mints a bearer token signed with the configured JWT_SECRET, for
// local testing without the identity provider.
func main() {
	log, _ := zap.NewDevelopment()
	defer log.Sync()

	userFlag := flag.String("user", "", "user id (random when empty)")
	role := flag.String("role", models.UserRoleClient, "client, freelancer or admin")
	ttl := flag.Duration("ttl", 0, "token lifetime (defaults to JWT_EXPIRATION_HOURS)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	userID := uuid.New()
	if *userFlag != "" {
		if userID, err = uuid.Parse(*userFlag); err != nil {
			log.Fatal("invalid user id", zap.String("user", *userFlag), zap.Error(err))
		}
	}
	if !models.IsValidUserRole(*role) {
		log.Fatal("invalid role", zap.String("role", *role))
	}

	exp := cfg.JWTExpiration
	if *ttl > 0 {
		exp = *ttl
	}

	token, err := auth.GenerateJWT(cfg.JWTSecret, userID, *role, exp)
	if err != nil {
		log.Fatal("failed to sign token", zap.Error(err))
	}

	fmt.Fprintf(os.Stderr, "user_id=%s role=%s expires_in=%s\n", userID, *role, exp.Round(time.Second))
	fmt.Println(token)
}
