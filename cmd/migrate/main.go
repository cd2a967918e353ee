// Command migrate applies the embedded PostgreSQL schema migrations.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/MrEthical07/goSession/store/postgres"
)

func main() {
	var (
		direction = flag.String("direction", "up", "migration direction: up or down")
		dsn       = flag.String("dsn", "", "postgres DSN; DATABASE_URL env is used when empty")
	)
	flag.Parse()

	url := *dsn
	if url == "" {
		url = os.Getenv("DATABASE_URL")
	}
	if url == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; pass -dsn or set DATABASE_URL")
		os.Exit(2)
	}

	if err := postgres.Migrate(url, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	fmt.Printf("migrations %s: ok\n", *direction)
}
