package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"goloja/internal/pkg/database"
	"goloja/internal/pkg/logger"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️ Warning: .env file not found or failed to read. Loading configs from system environment only: %v", err)
	}

	var migrationsDir, dsn string
	flag.StringVar(&migrationsDir, "dir", "./sql", "directory with migration files")
	flag.StringVar(&dsn, "dsn", os.Getenv("DATABASE_URL"), "postgres connection string (default $DATABASE_URL)")
	flag.Parse()

	if dsn == "" {
		log.Fatal("goose: DATABASE_URL (ou -dsn) é obrigatório")
	}

	db, err := database.NewPostgresDB(dsn, database.PoolOptions{MaxOpenConns: 2, MaxIdleConns: 1}, logger.NewLogger("warn"))
	if err != nil {
		log.Fatalf("goose: failed to connect to DB: %v\n", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Fatalf("goose: failed to close DB: %v\n", err)
		}
	}()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("goose: %v", err)
	}
	goose.SetLogger(goose.NopLogger())

	arguments := flag.Args()
	if len(arguments) == 0 {
		arguments = []string{"up"}
	}

	command := arguments[0]
	var args []string
	if len(arguments) > 1 {
		args = arguments[1:]
	}

	if err := goose.Run(command, db, migrationsDir, args...); err != nil {
		log.Fatalf("goose %v: %v", command, err)
	}

	fmt.Printf("goose %s success\n", command)
}
