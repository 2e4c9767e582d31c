package clients

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"database/sql"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/pbkdf2"
	_ "modernc.org/sqlite"
)

// arrConfigXML is the subset of an *arr application's config.xml the
// orchestrator reads.
type arrConfigXML struct {
	APIKey  string `xml:"ApiKey"`
	Port    int    `xml:"Port"`
	URLBase string `xml:"UrlBase"`
}

func readArrConfig(configDir string) (*arrConfigXML, error) {
	data, err := os.ReadFile(filepath.Join(configDir, "config.xml"))
	if err != nil {
		return nil, err
	}
	var cfg arrConfigXML
	if err := xml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config.xml: %w", err)
	}
	return &cfg, nil
}

// readArrAPIKey returns the ApiKey value, empty when unreadable.
func readArrAPIKey(configDir string) string {
	cfg, err := readArrConfig(configDir)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cfg.APIKey)
}

// readArrPort returns the configured TCP port, 0 when unreadable.
func readArrPort(configDir string) int {
	cfg, err := readArrConfig(configDir)
	if err != nil || cfg.Port <= 0 {
		return 0
	}
	return cfg.Port
}

// readArrURLBase returns the UrlBase without surrounding slashes.
func readArrURLBase(configDir string) string {
	cfg, err := readArrConfig(configDir)
	if err != nil {
		return ""
	}
	return strings.Trim(strings.TrimSpace(cfg.URLBase), "/")
}

const (
	arrConfigWaitTimeout  = 180 * time.Second
	arrConfigWaitInterval = 2 * time.Second
)

// waitForArrConfig polls until config.xml appears. The file is written by
// the service on first launch, so this bounds how long a fresh container
// may take to initialize.
func waitForArrConfig(ctx context.Context, configDir string) bool {
	configFile := filepath.Join(configDir, "config.xml")
	deadline := time.Now().Add(arrConfigWaitTimeout)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(configFile); err == nil {
			return true
		}
		if err := sleep(ctx, arrConfigWaitInterval); err != nil {
			return false
		}
	}
	_, err := os.Stat(configFile)
	return err == nil
}

// Forms-auth password hashing, matching the scheme the *arr apps store
// in their user database.
const (
	arrHashIterations = 10_000
	arrHashKeyLen     = 32
	arrHashSaltLen    = 16
)

// arrHashPassword derives a PBKDF2-HMAC-SHA512 hash. A nil salt means
// generate a fresh one. Returns base64 hash, base64 salt, iterations.
func arrHashPassword(password string, iterations int, salt []byte) (string, string, int, error) {
	if iterations <= 0 {
		iterations = arrHashIterations
	}
	if salt == nil {
		salt = make([]byte, arrHashSaltLen)
		if _, err := rand.Read(salt); err != nil {
			return "", "", 0, fmt.Errorf("generating salt: %w", err)
		}
	}
	derived := pbkdf2.Key([]byte(password), salt, iterations, arrHashKeyLen, sha512.New)
	return base64.StdEncoding.EncodeToString(derived),
		base64.StdEncoding.EncodeToString(salt),
		iterations, nil
}

// arrVerifyPassword checks password against a stored hash/salt pair.
func arrVerifyPassword(password, hashB64, saltB64 string, iterations int) bool {
	salt, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return false
	}
	derived, _, _, err := arrHashPassword(password, iterations, salt)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(derived), []byte(hashB64))
}

// arrUserRecord is the stored Forms credential row of an *arr app.
type arrUserRecord struct {
	Username   string
	Hash       string
	Salt       string
	Iterations int
}

// arrPasswordRecord reads the first user row from the service's SQLite
// database. Returns nil when the database or row does not exist.
func arrPasswordRecord(dbPath string) (*arrUserRecord, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, nil
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening user store: %w", err)
	}
	defer db.Close()

	row := db.QueryRow("SELECT Username, Password, Salt, Iterations FROM Users ORDER BY Id LIMIT 1")
	var rec arrUserRecord
	var hash, salt sql.NullString
	var iterations sql.NullInt64
	if err := row.Scan(&rec.Username, &hash, &salt, &iterations); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reading user store: %w", err)
	}
	rec.Hash = hash.String
	rec.Salt = salt.String
	rec.Iterations = int(iterations.Int64)
	if rec.Iterations == 0 {
		rec.Iterations = arrHashIterations
	}
	return &rec, nil
}

// arrPasswordMatches reports whether the stored Forms credentials match.
func arrPasswordMatches(dbPath, username, password string) bool {
	rec, err := arrPasswordRecord(dbPath)
	if err != nil || rec == nil {
		return false
	}
	if rec.Username != username || rec.Hash == "" || rec.Salt == "" {
		return false
	}
	return arrVerifyPassword(password, rec.Hash, rec.Salt, rec.Iterations)
}
