package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"mentorhub/internal/app"
	"mentorhub/internal/config"
	"mentorhub/internal/database"
	"mentorhub/pkg/types"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	seed := flag.Bool("seed", false, "load demo profiles and sessions, then continue serving")
	flag.Parse()

	// Optional .env for local development; missing file is fine.
	_ = godotenv.Load()

	configPath := os.Getenv("MENTORHUB_CONFIG_FILE")
	cfg := config.LoadConfigWithPrecedence(configPath)

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	if *seed {
		if err := seedDemoData(application.Database()); err != nil {
			return fmt.Errorf("failed to seed demo data: %w", err)
		}
		log.Printf("Demo data seeded")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	appErrCh := make(chan error, 1)
	go func() {
		if err := application.Start(ctx); err != nil {
			appErrCh <- err
		}
	}()

	select {
	case err := <-appErrCh:
		return fmt.Errorf("application error: %w", err)
	case sig := <-signalCh:
		log.Printf("Received signal %v, shutting down gracefully", sig)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := application.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	}
}

// seedDemoData loads a small fixture set for local development: one account
// per role and a session scheduled around "now" so the chat window is open
// immediately.
func seedDemoData(db *database.Manager) error {
	ctx := context.Background()

	profiles := []*types.Profile{
		{AccountID: "acc-student-1", Role: types.RoleStudent, ProfileID: "student-prof-1", DisplayName: "Demo Student", Email: "student@example.com"},
		{AccountID: "acc-mentor-1", Role: types.RoleMentor, ProfileID: "mentor-prof-1", DisplayName: "Demo Mentor", Email: "mentor@example.com"},
		{AccountID: "acc-company-1", Role: types.RoleCompany, ProfileID: "company-prof-1", DisplayName: "Demo Company", Email: "company@example.com"},
	}
	for _, profile := range profiles {
		if err := db.UpsertProfile(ctx, profile); err != nil {
			return err
		}
	}

	now := time.Now()
	start := now.Add(-5 * time.Minute)
	session := &types.Session{
		ID:               fmt.Sprintf("demo-session-%d", now.Unix()),
		StudentProfileID: "student-prof-1",
		MentorProfileID:  "mentor-prof-1",
		Date:             start.Format("2006-01-02"),
		StartTime:        start.Format("15:04"),
		DurationMinutes:  60,
		Status:           "confirmed",
	}
	if err := db.CreateSession(ctx, session); err != nil {
		return err
	}
	return nil
}
