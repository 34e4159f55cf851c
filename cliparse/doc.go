// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package cliparse handles command-line argument parsing and configuration.

# Configuration

ParseFlags returns a Config struct with all settings:

	if err := cliparse.LoadDotEnv(".env"); err != nil {
		log.Fatal(err)
	}
	cfg, err := cliparse.ParseFlags(os.Args[1:])

# Config Fields

  - Port: Server listen port (default: 3318)
  - DatabaseURL: Database connection string (required)
  - DatabaseType: sqlite or postgres (default: sqlite)
  - HouseKeySalt: Secret for house key HMAC (required)
  - VoterSalt: Secret for hashing poll voters (required)
  - Economy: point and heart parameters

# CLI Flags

	-p            Server port
	-d            Database URL
	-t            Database type
	--house-salt  House key salt
	--voter-salt  Voter hash salt

# Environment Variables

Flags fall back to environment variables:

	PORT           → -p
	DATABASE_URL   → -d
	DATABASE_TYPE  → -t
	HOUSE_KEY_SALT → --house-salt
	VOTER_SALT     → --voter-salt

CLI flags take precedence over environment variables. LoadDotEnv fills in
variables from a .env file without overriding the real environment.

# Economy

Economy parameters are only read from CHOREWHEEL_* variables and all have
defaults:

	CHOREWHEEL_POINTS_PER_RESIDENT=100
	CHOREWHEEL_INFLATION_FACTOR=1.0
	CHOREWHEEL_BOOTSTRAP_DURATION=72h
	CHOREWHEEL_DAMPING_FACTOR=0.99
	CHOREWHEEL_HEARTS_BASELINE=5
	CHOREWHEEL_EARLY_CLOSE=true

See Economy for the full list. DefaultEconomy returns the defaults without
looking at the environment, which is what tests use.
*/
package cliparse
