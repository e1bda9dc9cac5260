package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"savingsgame/cmd/internal/passphrase"
	"savingsgame/crypto"
	"savingsgame/native/savings"
	"savingsgame/services/gamed/archive"
)

const (
	keygenCommand    = "keygen"
	tokenCommand     = "token"
	whitelistCommand = "whitelist"
	exportCommand    = "export"
	auditCommand     = "audit"
	defaultPassEnv   = "GAMED_OPERATOR_PASS"
	defaultSecretEnv = "GAMED_AUTH_HMAC_SECRET"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Args[2:], os.Stdout)
	case tokenCommand:
		err = runToken(os.Args[2:], os.Stdout)
	case whitelistCommand:
		err = runWhitelist(os.Args[2:], os.Stdin, os.Stdout)
	case exportCommand:
		err = runExport(os.Args[2:], os.Stdout)
	case auditCommand:
		err = runAudit(os.Args[2:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runKeygen(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ExitOnError)
	keystorePath := fs.String("keystore", "player.keystore", "Output path for the generated keystore file")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	passFile := fs.String("pass-file", "", "File containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if !*force {
		if _, err := os.Stat(*keystorePath); err == nil {
			return fmt.Errorf("keystore file %s already exists (use --force to overwrite)", *keystorePath)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	pass, err := passphrase.New(passphrase.Config{EnvVar: *passEnv, File: *passFile, Confirm: true}).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	addr, err := crypto.SaveOperatorKey(*keystorePath, key, pass)
	if err != nil {
		return fmt.Errorf("failed to write keystore: %w", err)
	}
	fmt.Fprintf(out, "Wrote keystore for %s to %s\n", addr, *keystorePath)
	return nil
}

// tokenClaims builds the bearer token claims gamed expects.
func tokenClaims(subject, issuer, audience string, scopes []string, ttl time.Duration, now time.Time) jwt.MapClaims {
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if issuer != "" {
		claims["iss"] = issuer
	}
	if audience != "" {
		claims["aud"] = audience
	}
	if len(scopes) > 0 {
		claims["scope"] = strings.Join(scopes, " ")
	}
	return claims
}

func runToken(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(tokenCommand, flag.ExitOnError)
	subject := fs.String("subject", "", "Player address to authenticate as")
	keystorePath := fs.String("keystore", "", "Derive the subject from this keystore instead of --subject")
	passEnv := fs.String("pass-env", defaultPassEnv, "Environment variable containing the keystore passphrase")
	secretEnv := fs.String("secret-env", defaultSecretEnv, "Environment variable containing the HMAC secret")
	issuer := fs.String("issuer", "", "Token issuer")
	audience := fs.String("audience", "", "Token audience")
	scope := fs.String("scope", "", "Space separated scopes, e.g. admin")
	ttl := fs.Duration("ttl", time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sub := strings.TrimSpace(*subject)
	if *keystorePath != "" {
		pass, err := passphrase.NewSource(*passEnv).Get()
		if err != nil {
			return err
		}
		op, err := crypto.LoadOperatorKey(*keystorePath, pass)
		if err != nil {
			return fmt.Errorf("load keystore: %w", err)
		}
		sub = op.Address.String()
	}
	if sub == "" {
		return fmt.Errorf("--subject or --keystore is required")
	}
	if _, err := crypto.DecodeAddress(sub); err != nil {
		return fmt.Errorf("invalid subject: %w", err)
	}
	secret := strings.TrimSpace(os.Getenv(*secretEnv))
	if secret == "" {
		return fmt.Errorf("environment variable %s is not set", *secretEnv)
	}

	claims := tokenClaims(sub, *issuer, *audience, strings.Fields(*scope), *ttl, time.Now())
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return err
	}
	fmt.Fprintln(out, signed)
	return nil
}

type whitelistEntry struct {
	Index   uint64   `json:"index"`
	Address string   `json:"address"`
	Proof   []string `json:"proof"`
}

type whitelistOutput struct {
	Root    string           `json:"root"`
	Entries []whitelistEntry `json:"entries"`
}

func runWhitelist(args []string, in io.Reader, out io.Writer) error {
	fs := flag.NewFlagSet(whitelistCommand, flag.ExitOnError)
	file := fs.String("file", "", "File with one player address per line (defaults to stdin)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	result, err := buildWhitelist(in)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func buildWhitelist(in io.Reader) (*whitelistOutput, error) {
	var players [][20]byte
	scanner := bufio.NewScanner(in)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		addr, err := crypto.DecodeAddress(raw)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		players = append(players, addr.Array())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(players) == 0 {
		return nil, fmt.Errorf("no addresses supplied")
	}

	root, proofs := savings.BuildWhitelist(players)
	result := &whitelistOutput{Root: root.Hex(), Entries: make([]whitelistEntry, len(players))}
	for i, player := range players {
		proof := make([]string, len(proofs[i]))
		for j, node := range proofs[i] {
			proof[j] = node.Hex()
		}
		result.Entries[i] = whitelistEntry{
			Index:   uint64(i),
			Address: crypto.AddressFromArray(player).String(),
			Proof:   proof,
		}
	}
	return result, nil
}

func runExport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(exportCommand, flag.ExitOnError)
	dsn := fs.String("archive", "", "Event archive DSN (SQLite path or postgres:// URL)")
	path := fs.String("out", "events.parquet", "Output Parquet file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := archive.Open(*dsn, nil)
	if err != nil {
		return err
	}
	defer store.Close()
	n, err := store.ExportParquet(context.Background(), *path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Wrote %d events to %s\n", n, *path)
	return nil
}

func runAudit(args []string, out io.Writer) error {
	fs := flag.NewFlagSet(auditCommand, flag.ExitOnError)
	dsn := fs.String("archive", "", "Event archive DSN (SQLite path or postgres:// URL)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	store, err := archive.Open(*dsn, nil)
	if err != nil {
		return err
	}
	defer store.Close()
	checked, err := store.Verify(context.Background())
	if err != nil {
		return fmt.Errorf("after %d intact events: %w", checked, err)
	}
	fmt.Fprintf(out, "Digest chain intact across %d events\n", checked)
	return nil
}

func usage() {
	fmt.Println("gamectl <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Printf("  %s       Generate a player keystore\n", keygenCommand)
	fmt.Printf("  %s        Sign a bearer token for gamed\n", tokenCommand)
	fmt.Printf("  %s    Build a whitelist root and per-slot proofs from addresses\n", whitelistCommand)
	fmt.Printf("  %s       Export the event archive to Parquet\n", exportCommand)
	fmt.Printf("  %s        Verify the event archive digest chain\n", auditCommand)
}
