package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gewerk/handover/libs/auth"
)

// Mints an HS256 token for local testing against the gateway.
//
//	go run ./tools/actor-token -sub <party-id> -role commissioning | \
//	  xargs -I{} curl -H 'Authorization: Bearer {}' localhost:8080/api/v1/acceptances
func main() {
	var (
		sub    = flag.String("sub", getenv("ACTOR_ID", ""), "party id (sub claim)")
		orgID  = flag.String("org-id", getenv("ORG_ID", ""), "organisation id")
		role   = flag.String("role", getenv("ACTOR_ROLE", ""), "role claim (admin for the override)")
		secret = flag.String("secret", getenv("JWT_SECRET", ""), "HS256 signing secret, must match the gateway")
		ttl    = flag.Duration("ttl", time.Hour, "token lifetime")
	)
	flag.Parse()

	if strings.TrimSpace(*sub) == "" {
		fatal("ACTOR_ID is required")
	}
	if strings.TrimSpace(*secret) == "" {
		fatal("JWT_SECRET is required")
	}

	now := time.Now().UTC()
	token, err := auth.SignHS256(auth.Claims{
		Sub:   *sub,
		OrgID: *orgID,
		Role:  *role,
		Iat:   now.Unix(),
		Exp:   now.Add(*ttl).Unix(),
	}, *secret)
	if err != nil {
		fatal(err.Error())
	}
	fmt.Println(token)
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(2)
}
