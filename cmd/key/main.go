package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"fleettrack/internal/cli"
)

func main() {
	var (
		userID    = flag.String("user-id", "", "UUID of the user (subject)")
		companyID = flag.String("company-id", "", "Company the token is scoped to (empty for ADMIN)")
		role      = flag.String("role", "OPERATOR", "User role: OPERATOR | MANAGER | ADMIN")
		secret    = flag.String("secret", "", "JWT HMAC secret (HS256)")
	)
	flag.Parse()

	if *userID == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: key --user-id=<uuid> --company-id=<id> --role=OPERATOR --secret='<secret>'")
		os.Exit(2)
	}

	token, claims, err := cli.GenerateUserToken(*secret, *userID, *companyID, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Println("TOKEN:")
	fmt.Println(token)
	fmt.Println("\nCLAIMS:")
	fmt.Printf("  sub:     %s\n", claims.Subject)
	fmt.Printf("  role:    %s\n", claims.Role)
	fmt.Printf("  company: %s\n", claims.CompanyID)
	fmt.Printf("  iat:     %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
	fmt.Printf("  exp:     %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
}
