package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/chungtau/txn-webhook/internal/middleware"
)

func main() {
	subject := flag.String("subject", "", "Token subject (default: generate new UUID)")
	secret := flag.String("secret", "dev-secret-key", "JWT secret key")
	scope := flag.String("scope", middleware.ReadScope, "Space separated scopes")
	expiry := flag.Int("expiry", 3600, "Token expiry in seconds")
	flag.Parse()

	sub := *subject
	if sub == "" {
		sub = uuid.NewString()
	}

	token, expiresAt, err := middleware.IssueToken(*secret, sub, *scope, time.Duration(*expiry)*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("=== Generated JWT Token ===")
	fmt.Printf("Subject:    %s\n", sub)
	fmt.Printf("Scope:      %s\n", *scope)
	fmt.Printf("Expires At: %s\n", expiresAt.UTC().Format(time.RFC3339))
	fmt.Println("")
	fmt.Println("Token:")
	fmt.Println(token)
	fmt.Println("")
	fmt.Println("Usage:")
	fmt.Printf("curl -H \"Authorization: Bearer %s\" http://localhost:8080/v1/transactions/TXN00123\n", token)
}
