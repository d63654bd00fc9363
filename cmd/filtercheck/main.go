// Command filtercheck runs messages through the moderation filter without
// starting the service, using either a rules file or the live database.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/af-corp/chatfilter/internal/config"
	"github.com/af-corp/chatfilter/internal/disposition"
	"github.com/af-corp/chatfilter/internal/moderation"
	"github.com/af-corp/chatfilter/internal/store"
	"github.com/jackc/pgx/v5"
)

type output struct {
	Input       string             `json:"input"`
	Result      moderation.Result  `json:"result"`
	Disposition disposition.Action `json:"disposition"`
}

func main() {
	rulesPath := flag.String("rules", "", "rules file to test against (settings and rules)")
	dbURL := flag.String("db-url", "", "database URL (overrides env); used when -rules is not set")
	settingsKey := flag.String("settings-key", "chat_filter", "app_settings key holding the filter settings")
	pretty := flag.Bool("pretty", false, "indent JSON output")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var src store.Source
	if *rulesPath != "" {
		rules, err := config.LoadRules(*rulesPath)
		if err != nil {
			log.Fatalf("failed to load rules: %v", err)
		}
		src = store.NewFileSource(func() *config.RulesConfig { return rules })
	} else {
		conn, err := pgx.Connect(ctx, resolveDSN(*dbURL))
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer conn.Close(ctx)
		src = store.NewPostgresSource(conn, *settingsKey)
	}

	filter := moderation.NewFilter(src, src)
	enc := json.NewEncoder(os.Stdout)
	if *pretty {
		enc.SetIndent("", "  ")
	}

	check := func(text string) {
		res, err := filter.Apply(ctx, text)
		if err != nil {
			log.Fatalf("moderation failed: %v", err)
		}
		enc.Encode(output{
			Input:       text,
			Result:      res,
			Disposition: disposition.Fallback(disposition.NewInput(res).Result),
		})
	}

	if flag.NArg() > 0 {
		for _, text := range flag.Args() {
			check(text)
		}
		return
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		check(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		log.Fatalf("failed to read stdin: %v", err)
	}
}

func resolveDSN(dbURL string) string {
	if dbURL != "" {
		return dbURL
	}
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}
	host := envOrDefault("DB_HOST", "localhost")
	port := envOrDefault("DB_PORT", "5432")
	user := envOrDefault("DB_USER", "chatfilter")
	pass := envOrDefault("DB_PASSWORD", "chatfilter-dev")
	name := envOrDefault("DB_NAME", "chatfilter")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
