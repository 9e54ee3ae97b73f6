package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort         string
	MongoURI           string
	MongoDBName        string
	MongoCollection    string
	ProjectsCollection string
	JWTSecret          string
	CORSOrigin         string
	LogFile            string
	Neo4jURI           string
	Neo4jUsername      string
	Neo4jPassword      string
	UpcomingDays       int
}

// Load reads envFile into the environment, if it exists, and builds a
// Config from the environment. Variables already set win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		ServerPort:         os.Getenv("SERVER_PORT"),
		MongoURI:           os.Getenv("MONGO_URI"),
		MongoDBName:        os.Getenv("MONGO_DB_NAME"),
		MongoCollection:    getenv("MONGO_COLLECTION", "tasks"),
		ProjectsCollection: getenv("PROJECTS_COLLECTION", "projects"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		CORSOrigin:         getenv("CORS_ORIGIN", "*"),
		LogFile:            os.Getenv("LOG_FILE"),
		Neo4jURI:           os.Getenv("NEO4J_URI"),
		Neo4jUsername:      os.Getenv("NEO4J_USERNAME"),
		Neo4jPassword:      os.Getenv("NEO4J_PASSWORD"),
	}

	if v := os.Getenv("UPCOMING_DAYS"); v != "" {
		days, err := strconv.Atoi(v)
		if err != nil || days < 0 {
			return nil, fmt.Errorf("UPCOMING_DAYS must be a non-negative integer, got %q", v)
		}
		cfg.UpcomingDays = days
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	var missing []string
	for key, v := range map[string]string{
		"SERVER_PORT":   c.ServerPort,
		"MONGO_URI":     c.MongoURI,
		"MONGO_DB_NAME": c.MongoDBName,
		"JWT_SECRET":    c.JWTSecret,
	} {
		if v == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	if c.Neo4jURI != "" && (c.Neo4jUsername == "" || c.Neo4jPassword == "") {
		return errors.New("NEO4J_URI is set but NEO4J_USERNAME or NEO4J_PASSWORD is missing")
	}
	return nil
}

// HierarchyEnabled reports whether the Neo4j mirror is configured.
func (c *Config) HierarchyEnabled() bool {
	return c.Neo4jURI != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
