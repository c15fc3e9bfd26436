package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bytedance/sonic"
	"github.com/golang-jwt/jwt/v4"
	log "github.com/sirupsen/logrus"
)

func main() {
	var (
		count    = flag.Int("count", 1, "number of tokens to generate")
		prefix   = flag.String("prefix", "dev-user", "prefix for generated user IDs when count > 1")
		start    = flag.Int("start", 1, "starting index for generated user IDs when count > 1")
		ttl      = flag.Duration("ttl", time.Hour, "token lifetime")
		audience = flag.String("aud", os.Getenv("AUTH0_AUDIENCE"), "audience claim")
		issuer   = flag.String("iss", "", "issuer claim")
		output   = flag.String("output", "", "file to write generated tokens as a JSON array")
	)
	flag.Parse()

	if *count < 1 {
		log.Fatal("count must be at least 1")
	}
	if *start < 1 {
		log.Fatal("start index must be at least 1")
	}
	args := flag.Args()
	if len(args) > 0 && *count > 1 {
		log.Fatal("explicit user ID cannot be provided when generating multiple tokens")
	}

	secret := os.Getenv("TEST_JWT_SECRET")
	if secret == "" {
		secret = os.Getenv("LOCAL_AUTH_SHARED_SECRET")
	}

	tokens := make([]string, *count)
	for i := range tokens {
		userID := *prefix
		switch {
		case len(args) > 0:
			userID = args[0]
		case *count > 1:
			userID = fmt.Sprintf("%s-%d", *prefix, *start+i)
		}
		tok, err := signToken(secret, userID, *audience, *issuer, *ttl)
		if err != nil {
			log.Fatalf("generate token: %v", err)
		}
		tokens[i] = tok
	}

	if *output != "" {
		if err := writeTokens(*output, tokens); err != nil {
			log.Fatalf("write tokens: %v", err)
		}
	}
	fmt.Print(tokens[0])
}

// signToken returns an HS256 token accepted by the API in test mode.
func signToken(secret, userID, audience, issuer string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("TEST_JWT_SECRET must be set")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if audience != "" {
		claims["aud"] = audience
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := sonic.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
