// Seed creates demo users (one admin) and a batch of items per user.
// Run from project root: go run ./scripts/seed
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"items-api/internal/database"
)

func main() {
	loadEnvFile(".env")

	ctx := context.Background()
	db := database.InitDB(ctx)
	if db == nil {
		fmt.Fprintln(os.Stderr, "DATABASE_URL not set or DB connection failed")
		os.Exit(1)
	}
	if err := database.MigrateOrCreateSchema(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Schema failed:", err)
		os.Exit(1)
	}

	start := time.Now()

	users := []struct {
		username string
		isAdmin  bool
	}{
		{"admin", true},
		{"alice", false},
		{"bob", false},
	}
	ids := make(map[string]int64, len(users))
	for _, u := range users {
		var id int64
		err := db.QueryRowContext(ctx,
			`INSERT INTO users (username, is_admin) VALUES ($1, $2)
			 ON CONFLICT (username) DO UPDATE SET is_admin = EXCLUDED.is_admin
			 RETURNING id`, u.username, u.isAdmin).Scan(&id)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Seed user failed:", err)
			os.Exit(1)
		}
		ids[u.username] = id
		fmt.Printf("user %-6s id=%d admin=%v\n", u.username, id, u.isAdmin)
	}

	const itemsPerUser = 25
	for _, username := range []string{"alice", "bob"} {
		for n := 1; n <= itemsPerUser; n++ {
			_, err := db.ExecContext(ctx,
				`INSERT INTO items (title, description, done, user_id) VALUES ($1, $2, $3, $4)`,
				fmt.Sprintf("Task %d for %s", n, username),
				fmt.Sprintf("Description of task %d", n),
				n%3 == 0,
				ids[username])
			if err != nil {
				fmt.Fprintln(os.Stderr, "Seed item failed:", err)
				os.Exit(1)
			}
		}
	}

	fmt.Printf("Done: %d users, %d items in %v\n", len(users), 2*itemsPerUser, time.Since(start))
}

func loadEnvFile(path string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		val := strings.TrimSpace(line[idx+1:])
		if strings.HasPrefix(val, `"`) && strings.HasSuffix(val, `"`) {
			val = strings.Trim(val, `"`)
		} else if strings.HasPrefix(val, "'") && strings.HasSuffix(val, "'") {
			val = strings.Trim(val, "'")
		}
		if key != "" && os.Getenv(key) == "" {
			_ = os.Setenv(key, val)
		}
	}
}
