// Command issue-token mints a bearer token for local testing against the auction server.
//
//	JWT_SECRET=... go run ./cmd/issue-token -user alice
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"auction-engine/internal/auth"
	"auction-engine/utils"
)

func main() {
	userID := flag.String("user", "", "user id to put in the token")
	secret := flag.String("secret", os.Getenv("JWT_SECRET"), "signing secret (defaults to $JWT_SECRET)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" || *secret == "" {
		flag.Usage()
		os.Exit(2)
	}

	token, err := auth.NewJWTManager(*secret, *ttl).Generate(*userID)
	if err != nil {
		utils.Fatal("failed to issue token", map[string]any{"user_id": *userID, "error": err.Error()})
	}
	fmt.Println(token)
}
