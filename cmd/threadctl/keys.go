package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/threadlens/internal/config"
	"github.com/kiranshivaraju/threadlens/internal/store"
	"github.com/kiranshivaraju/threadlens/pkg/models"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const (
	keyPrefix    = "tl_"
	keyRandBytes = 24
	// Must match the prefix length the auth middleware looks keys up by.
	keyLookupLen = 8
)

var validScopes = map[string]bool{
	models.ScopeRead:   true,
	models.ScopeIngest: true,
	models.ScopeAdmin:  true,
}

type keyCreator interface {
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

type keyLister interface {
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
}

type keyRevoker interface {
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// dbFlags binds --database-url and opens a store from it.
type dbFlags struct {
	url string
}

func (f *dbFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.url, "database-url", os.Getenv("DATABASE_URL"), "Postgres connection URL")
}

// open returns the store and a close func.
func (f *dbFlags) open(ctx context.Context) (*store.PostgresStore, func(), error) {
	if f.url == "" {
		return nil, nil, errors.New("--database-url or DATABASE_URL is required")
	}
	pool, err := store.Connect(ctx, config.DatabaseConfig{
		URL:             f.url,
		MaxOpenConns:    2,
		ConnMaxLifetime: time.Minute,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

func newCreateKeyCmd() *cobra.Command {
	var (
		name   string
		scopes []string
		db     dbFlags
	)
	cmd := &cobra.Command{
		Use:   "create-key",
		Short: "Create an API key and print it once",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeDB, err := db.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()

			rawKey, key, err := createKey(cmd.Context(), st, name, scopes, time.Now().UTC())
			if err != nil {
				return err
			}
			return printKey(cmd, rawKey, key)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "label for the key (required)")
	cmd.Flags().StringSliceVar(&scopes, "scopes", []string{models.ScopeRead}, "comma-separated scopes: read,ingest,admin")
	db.bind(cmd)
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newListKeysCmd() *cobra.Command {
	var db dbFlags
	cmd := &cobra.Command{
		Use:   "list-keys",
		Short: "List active API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, closeDB, err := db.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()
			return listKeys(cmd.Context(), cmd, st)
		},
	}
	db.bind(cmd)
	return cmd
}

func newRevokeKeyCmd() *cobra.Command {
	var db dbFlags
	cmd := &cobra.Command{
		Use:   "revoke-key <id>",
		Short: "Revoke an API key by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid key id %q: %w", args[0], err)
			}
			st, closeDB, err := db.open(cmd.Context())
			if err != nil {
				return err
			}
			defer closeDB()
			return revokeKey(cmd.Context(), cmd, st, id)
		},
	}
	db.bind(cmd)
	return cmd
}

func listKeys(ctx context.Context, cmd *cobra.Command, keys keyLister) error {
	list, err := keys.ListAPIKeys(ctx)
	if err != nil {
		return fmt.Errorf("list keys: %w", err)
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No API keys.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPREFIX\tSCOPES\tLAST USED\tCREATED")
	for _, k := range list {
		lastUsed := "never"
		if k.LastUsedAt != nil {
			lastUsed = k.LastUsedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			k.ID, k.Name, k.KeyPrefix, strings.Join(k.Scopes, ","), lastUsed, k.CreatedAt.UTC().Format(time.RFC3339))
	}
	return w.Flush()
}

func revokeKey(ctx context.Context, cmd *cobra.Command, keys keyRevoker, id uuid.UUID) error {
	if err := keys.RevokeAPIKey(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("key %s not found or already revoked", id)
		}
		return fmt.Errorf("revoke key: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Revoked key %s\n", id)
	return nil
}

// createKey generates a raw key, stores its bcrypt hash and returns both.
// The raw key is never persisted.
func createKey(ctx context.Context, keys keyCreator, name string, scopes []string, now time.Time) (string, *models.APIKey, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil, errors.New("key name must not be empty")
	}

	scopes, err := normalizeScopes(scopes)
	if err != nil {
		return "", nil, err
	}

	rawKey, err := generateRawKey()
	if err != nil {
		return "", nil, fmt.Errorf("generate key: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash key: %w", err)
	}

	key := &models.APIKey{
		ID:        uuid.New(),
		Name:      name,
		KeyHash:   string(hash),
		KeyPrefix: rawKey[:keyLookupLen],
		Scopes:    scopes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := keys.CreateAPIKey(ctx, key); err != nil {
		return "", nil, fmt.Errorf("store key: %w", err)
	}
	return rawKey, key, nil
}

func normalizeScopes(in []string) ([]string, error) {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		if !validScopes[s] {
			return nil, fmt.Errorf("unknown scope %q: must be read, ingest or admin", s)
		}
		seen[s] = true
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.New("at least one scope is required")
	}
	return out, nil
}

func generateRawKey() (string, error) {
	b := make([]byte, keyRandBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return keyPrefix + hex.EncodeToString(b), nil
}

func printKey(cmd *cobra.Command, rawKey string, key *models.APIKey) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\t%s\n", key.ID)
	fmt.Fprintf(w, "Name\t%s\n", key.Name)
	fmt.Fprintf(w, "Scopes\t%s\n", strings.Join(key.Scopes, ","))
	fmt.Fprintf(w, "Key\t%s\n", rawKey)
	if err := w.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintln(cmd.OutOrStdout(), "\nStore this key now. It cannot be shown again.")
	return err
}
