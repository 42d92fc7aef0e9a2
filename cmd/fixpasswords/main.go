// Command fixpasswords repairs user records whose password_hash field holds
// a plaintext password left over from manual edits, replacing it with a
// bcrypt hash of the same value. Bcrypt and legacy salted hashes are left
// untouched.
package main

import (
	"flag"
	"log"
	"strings"

	"refbook/internal/auth"
	"refbook/internal/config"
	"refbook/internal/database"
	"refbook/internal/util"
	"refbook/pkg/docstore"
)

func main() {
	configPath := flag.String("config", config.ConfigPath, "path to config file")
	apply := flag.Bool("apply", false, "rewrite plaintext hashes instead of reporting them")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	tables, err := openTables(cfg)
	if err != nil {
		util.Fatal("failed to open storage", "driver", cfg.StorageDriver, "error", err)
	}
	db := database.New(tables, logger)

	users, err := db.AllUsers()
	if err != nil {
		util.Fatal("failed to list users", "error", err)
	}

	fixed := 0
	for _, user := range users {
		if !isPlaintext(user.PasswordHash) {
			continue
		}
		if !*apply {
			logger.Info("would rehash plaintext password", "user_id", user.ID, "username", user.Username)
			fixed++
			continue
		}
		hash, err := auth.HashPassword(user.PasswordHash)
		if err != nil {
			logger.Warn("failed to hash password", "user_id", user.ID, "error", err)
			continue
		}
		count, err := tables.Users.Update(docstore.Document{"password_hash": hash}, "id", user.ID)
		if err != nil || count == 0 {
			logger.Warn("failed to update user record", "user_id", user.ID, "error", err)
			continue
		}
		logger.Info("rehashed plaintext password", "user_id", user.ID, "username", user.Username)
		fixed++
	}
	if !*apply && fixed > 0 {
		logger.Info("dry run, re-run with -apply to rewrite", "affected", fixed)
	}
	logger.Info("done", "users", len(users), "affected", fixed)
}

// isPlaintext reports whether the stored value is neither a bcrypt hash nor
// a legacy salt$sha256 hash.
func isPlaintext(hash string) bool {
	if hash == "" || !auth.IsLegacyHash(hash) {
		return false
	}
	parts := strings.Split(hash, "$")
	if len(parts) == 2 && len(parts[1]) == 64 {
		// legacy salted hash, still verifiable at login
		return false
	}
	return true
}

func openTables(cfg config.FileConfig) (database.Tables, error) {
	if cfg.StorageDriver == "postgres" {
		db, err := docstore.OpenGormDB(cfg.DatabaseURL)
		if err != nil {
			return database.Tables{}, err
		}
		return database.GormTables(db), nil
	}
	return database.OpenFileTables(cfg.DataDir)
}
