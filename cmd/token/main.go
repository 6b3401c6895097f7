// Command token mints a bearer token for the API. There is no login
// endpoint; operators issue tokens with this tool.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sahasand/site-tracker/internal/config"
	"github.com/sahasand/site-tracker/internal/util"
	"github.com/sahasand/site-tracker/pkg/rbac"
)

func main() {
	userID := flag.String("user", "", "user id placed in the token")
	role := flag.String("role", rbac.RoleViewer, "role: admin, coordinator or viewer")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "token: -user is required")
		os.Exit(2)
	}
	if !rbac.IsValidRole(*role) {
		fmt.Fprintf(os.Stderr, "token: unknown role %q\n", *role)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
	if cfg.JWT.Secret == "" {
		fmt.Fprintln(os.Stderr, "token: jwt.secret is not configured")
		os.Exit(1)
	}

	tok, err := util.GenerateJWT(*userID, *role, cfg.JWT.Secret, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
