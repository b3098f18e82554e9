package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"bookbot/pkg/isbn"
	"bookbot/pkg/pipeline"
	"bookbot/pkg/report"
	"bookbot/pkg/session"
	"bookbot/pkg/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using the environment as-is")
	}

	root := &cobra.Command{
		Use:   "bookbot",
		Short: "A personal library tracker with a conversational interface",
	}
	root.AddCommand(serveCmd(), chatCmd(), reportCmd(), initdbCmd())

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func storeConfigFromEnv() store.Config {
	return store.Config{
		Driver:   getEnv("DB_DRIVER", "sqlite"),
		Path:     getEnv("DB_PATH", "data/library.db"),
		Host:     getEnv("DB_HOST", "postgres"),
		Port:     getEnv("DB_PORT", "5432"),
		User:     getEnv("DB_USER", "program"),
		Password: getEnv("DB_PASSWORD", "test"),
		Name:     getEnv("DB_NAME", "library"),
	}
}

func openDeps() (session.Deps, error) {
	st, err := store.Open(storeConfigFromEnv())
	if err != nil {
		return session.Deps{}, fmt.Errorf("open store: %w", err)
	}
	return session.Deps{
		Store:    st,
		Pipeline: pipeline.New(st),
		Reporter: report.New(st),
		ISBN:     isbn.NewClient(),
	}, nil
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Talk to the library on the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := openDeps()
			if err != nil {
				return err
			}
			manager := session.NewManager(deps)
			sess := manager.Session("terminal")

			for _, msg := range sess.Handle("/start") {
				fmt.Println(msg)
			}
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				for _, msg := range sess.Handle(scanner.Text()) {
					fmt.Println(msg)
				}
			}
		},
	}
}

func reportCmd() *cobra.Command {
	var previous bool
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print the monthly report",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := openDeps()
			if err != nil {
				return err
			}
			now := time.Now()
			since, until := report.MonthStart(now), now
			if previous {
				since, until = report.PrevMonth(now)
			}
			digest, err := deps.Reporter.CombinedDigest(since, until)
			if err != nil {
				return err
			}
			for _, part := range report.SplitMessage(digest, report.DefaultMessageBudget) {
				fmt.Println(part)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&previous, "previous", false, "report on the previous calendar month")
	return cmd
}

func initdbCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "initdb",
		Short: "Create the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.Open(storeConfigFromEnv())
			if err != nil {
				return err
			}
			if err := st.Ping(); err != nil {
				return err
			}
			log.Println("Database ready")
			return nil
		},
	}
}
