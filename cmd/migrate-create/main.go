// Command migrate-create scaffolds a timestamped up/down migration pair under
// db/migrations for the session schema.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const migrationsDir = "db/migrations"

func main() {
	name := flag.String("name", "", "migration name, e.g. add_turn_resolved_by")
	flag.Parse()

	if *name == "" {
		log.Fatal("migration name is required")
	}
	if strings.ContainsAny(*name, " ") {
		log.Fatal("migration name must not contain spaces")
	}

	version := time.Now().UTC().Format("20060102150405")
	base := fmt.Sprintf("%s_%s", version, *name)
	upPath := filepath.Join(migrationsDir, base+".up.sql")
	downPath := filepath.Join(migrationsDir, base+".down.sql")

	if err := os.MkdirAll(migrationsDir, 0o755); err != nil {
		log.Fatalf("create migrations dir: %v", err)
	}

	if err := scaffold(upPath, fmt.Sprintf("-- %s (up)\n", *name)); err != nil {
		log.Fatalf("create up migration: %v", err)
	}
	if err := scaffold(downPath, fmt.Sprintf("-- %s (down)\n", *name)); err != nil {
		log.Fatalf("create down migration: %v", err)
	}

	log.Printf("created %s and %s", upPath, downPath)
}

// scaffold refuses to overwrite so a rerun cannot clobber an edited migration.
func scaffold(path, content string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("file already exists: %s", path)
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}
