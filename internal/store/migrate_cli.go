package store

import (
	"fmt"
	"log"
	"os"
)

// RunMigrateCommand dispatches the daemon's `migrate` subcommand. It opens
// the database without the automatic upgrade NewDB performs, so the schema
// can be inspected or repaired by hand.
func RunMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		printMigrateHelp()
		os.Exit(1)
	}

	db, err := OpenDB(dbPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	switch args[0] {
	case "up":
		if err := db.MigrateUp(); err != nil {
			log.Fatalf("migrate up failed: %v", err)
		}
		log.Println("all migrations applied")
		logSchemaVersion(db)

	case "down":
		if err := db.MigrateDown(); err != nil {
			log.Fatalf("migrate down failed: %v", err)
		}
		log.Println("rolled back one migration")
		logSchemaVersion(db)

	case "status":
		version, dirty, err := db.MigrateVersion()
		if err != nil {
			log.Fatalf("read migration status: %v", err)
		}
		fmt.Printf("schema version: %d\n", version)
		fmt.Printf("dirty: %v\n", dirty)
		if dirty {
			fmt.Println("a migration failed mid-run; inspect the database, then run `vigil migrate force <version>`")
		}

	case "force":
		if len(args) < 2 {
			log.Fatal("usage: vigil migrate force <version>")
		}
		var version int
		if _, err := fmt.Sscanf(args[1], "%d", &version); err != nil {
			log.Fatalf("invalid version number: %s", args[1])
		}
		if err := db.MigrateForce(version); err != nil {
			log.Fatalf("force migration failed: %v", err)
		}
		log.Printf("schema version forced to %d", version)

	case "help":
		printMigrateHelp()

	default:
		fmt.Printf("unknown migrate action: %s\n\n", args[0])
		printMigrateHelp()
		os.Exit(1)
	}
}

func logSchemaVersion(db *DB) {
	version, dirty, err := db.MigrateVersion()
	if err != nil {
		return
	}
	log.Printf("schema version: %d (dirty: %v)", version, dirty)
}

func printMigrateHelp() {
	fmt.Println("Database migration commands")
	fmt.Println()
	fmt.Println("Usage: vigil migrate [-db <path>] <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up               Apply all pending migrations")
	fmt.Println("  down             Roll back the most recent migration")
	fmt.Println("  status           Show the current schema version")
	fmt.Println("  force <version>  Mark the schema version without migrating (recovery only)")
	fmt.Println("  help             Show this help message")
	fmt.Println()
	fmt.Println("The daemon applies pending migrations automatically at startup; these")
	fmt.Println("commands are for inspecting or repairing a database by hand.")
}
