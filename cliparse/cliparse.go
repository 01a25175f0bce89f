package cliparse

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	DatabaseURL     string
	DatabaseType    string
	VoterTokenSalt  string
	OperatorKeySalt string
	KeyBits         int
	TotalShares     int
	Quorum          int
	BatchWorkers    int
	EnvFile         string
}

// ParseFlags validates flags and fills the rest from the environment.
// Precedence: CLI flag, environment, .env file, default.
func ParseFlags(args []string) (Config, error) {
	var cfg Config

	fs := flag.NewFlagSet("ballotbox", flag.ContinueOnError)

	// Network config (can be CLI args or env)
	fs.IntVar(&cfg.Port, "p", 0, "Server port")
	fs.StringVar(&cfg.DatabaseURL, "d", "", "Database URL")
	fs.StringVar(&cfg.DatabaseType, "t", "", "Database type (sqlite or postgres)")
	fs.StringVar(&cfg.EnvFile, "env-file", ".env", "Optional dotenv file")

	// Secrets (prefer env variables, but allow CLI for dev)
	fs.StringVar(&cfg.VoterTokenSalt, "voter-salt", "", "Voter token salt (prefer env)")
	fs.StringVar(&cfg.OperatorKeySalt, "operator-salt", "", "Operator key salt (prefer env)")

	// Key custody
	fs.IntVar(&cfg.KeyBits, "key-bits", 0, "RSA modulus size for election keys")
	fs.IntVar(&cfg.TotalShares, "shares", 0, "Custodian shares per election key")
	fs.IntVar(&cfg.Quorum, "quorum", 0, "Shares required to reconstruct an election key")
	fs.IntVar(&cfg.BatchWorkers, "batch-workers", 0, "Parallel workers for offline batches")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	// godotenv.Load never overrides variables that are already set
	if cfg.EnvFile != "" {
		if err := godotenv.Load(cfg.EnvFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", cfg.EnvFile, err)
		}
	}

	var err error
	if cfg.Port, err = intSetting(cfg.Port, "PORT", 3318); err != nil {
		return Config{}, err
	}
	if cfg.KeyBits, err = intSetting(cfg.KeyBits, "ELECTION_KEY_BITS", 3072); err != nil {
		return Config{}, err
	}
	if cfg.TotalShares, err = intSetting(cfg.TotalShares, "KEY_TOTAL_SHARES", 5); err != nil {
		return Config{}, err
	}
	if cfg.Quorum, err = intSetting(cfg.Quorum, "KEY_QUORUM", 3); err != nil {
		return Config{}, err
	}
	if cfg.BatchWorkers, err = intSetting(cfg.BatchWorkers, "BATCH_WORKERS", 4); err != nil {
		return Config{}, err
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if cfg.DatabaseURL == "" {
		return Config{}, errors.New("database URL required (use -d or DATABASE_URL env)")
	}

	if cfg.DatabaseType == "" {
		cfg.DatabaseType = os.Getenv("DATABASE_TYPE")
		if cfg.DatabaseType == "" {
			cfg.DatabaseType = "sqlite"
		}
	}

	// Secrets - MUST be provided
	if cfg.VoterTokenSalt == "" {
		cfg.VoterTokenSalt = os.Getenv("VOTER_TOKEN_SALT")
	}
	if cfg.VoterTokenSalt == "" {
		return Config{}, errors.New("VOTER_TOKEN_SALT required")
	}

	if cfg.OperatorKeySalt == "" {
		cfg.OperatorKeySalt = os.Getenv("OPERATOR_KEY_SALT")
	}
	if cfg.OperatorKeySalt == "" {
		return Config{}, errors.New("OPERATOR_KEY_SALT required")
	}

	if cfg.KeyBits < 2048 {
		return Config{}, errors.New("key bits must be at least 2048")
	}
	if cfg.Quorum < 2 || cfg.Quorum > cfg.TotalShares {
		return Config{}, fmt.Errorf("quorum %d must be between 2 and the share count %d", cfg.Quorum, cfg.TotalShares)
	}
	if cfg.BatchWorkers < 1 {
		return Config{}, errors.New("batch workers must be at least 1")
	}

	return cfg, nil
}

// intSetting returns the flag value if set, else the env variable, else def.
func intSetting(flagVal int, env string, def int) (int, error) {
	if flagVal != 0 {
		return flagVal, nil
	}
	if s := os.Getenv(env); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("invalid %s env variable", env)
		}
		return v, nil
	}
	return def, nil
}
