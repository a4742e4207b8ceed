package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/toolshare/admin_api/dto"
	"github.com/toolshare/admin_api/model"
	"github.com/toolshare/admin_api/services"
	"github.com/toolshare/admin_api/services/repositories"
	"gorm.io/gorm"
)

var (
	dbDriver string
	dbDSN    string
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug("No .env file found, using environment")
	}

	rootCmd := &cobra.Command{
		Use:   "ctl",
		Short: "Admin tooling for the security subsystem",
		Long:  "Seed administrators and manage the durable IP block list and security log directly against the database.",
	}

	rootCmd.PersistentFlags().StringVar(&dbDriver, "driver", envOr("DB_DRIVER", services.DriverPostgres), "database driver (postgres or sqlite)")
	rootCmd.PersistentFlags().StringVar(&dbDSN, "dsn", "", "database DSN or sqlite path (defaults to DATABASE_URL / DB_* / DB_DATABASE)")

	rootCmd.AddCommand(seedAdminCmd(), blockCmd(), unblockCmd(), blocksCmd(), logsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func openDB() (*gorm.DB, error) {
	dsn := dbDSN
	if dsn == "" {
		if dbDriver == services.DriverSqlite {
			dsn = envOr("DB_DATABASE", "admin_api.db")
		} else {
			dsn = services.PostgresDSNFromEnv()
		}
	}
	return services.OpenDatabase(dbDriver, dsn)
}

// newServices builds the block list and audit services without the
// container so CLI actions are audited like HTTP ones.
func newServices(db *gorm.DB) (*services.BlockedIPService, *services.SecurityLogService) {
	securityLog := services.NewSecurityLogService(db, nil)
	return services.NewBlockedIPService(db, securityLog, nil), securityLog
}

func seedAdminCmd() *cobra.Command {
	var req dto.SeedAdminRequest

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create a super admin account",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := req.Validate(); err != nil {
				for _, e := range dto.FormatValidationErrors(err) {
					fmt.Fprintln(os.Stderr, e.Message)
				}
				return fmt.Errorf("invalid admin details")
			}

			db, err := openDB()
			if err != nil {
				return err
			}

			user, err := repositories.NewUserRepository(db).CreateAdmin(cmd.Context(), req.Email, req.Username, req.Password)
			if err != nil {
				if repositories.IsUniqueViolation(err) {
					return fmt.Errorf("a user with that email or username already exists")
				}
				return err
			}

			fmt.Printf("Created super admin %s (%s)\n", user.Username, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Email, "email", "", "admin email")
	cmd.Flags().StringVar(&req.Username, "username", "", "admin username")
	cmd.Flags().StringVar(&req.Password, "password", "", "admin password")
	return cmd
}

func blockCmd() *cobra.Command {
	var (
		reason      string
		description string
		duration    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "block <ip>",
		Short: "Block an IP address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := dto.BlockIPRequest{
				IPAddress:   args[0],
				Reason:      reason,
				Description: description,
			}
			if duration > 0 {
				req.DurationMinutes = int((duration + time.Minute - 1) / time.Minute)
			}
			if err := req.Validate(); err != nil {
				for _, e := range dto.FormatValidationErrors(err) {
					fmt.Fprintln(os.Stderr, e.Message)
				}
				return fmt.Errorf("invalid block request")
			}

			db, err := openDB()
			if err != nil {
				return err
			}

			blocklist, _ := newServices(db)
			record, err := blocklist.Block(cmd.Context(), req, "", "cli")
			if err != nil {
				return err
			}

			expiry := "never"
			if record.ExpiresAt != nil {
				expiry = record.ExpiresAt.Format(time.RFC3339)
			}
			fmt.Printf("Blocked %s (%s), expires %s\n", record.IPAddress, record.Reason, expiry)
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", string(model.BlockReasonManualBlock), "block reason")
	cmd.Flags().StringVar(&description, "description", "", "free-text description")
	cmd.Flags().DurationVar(&duration, "duration", 0, "block duration, e.g. 24h (0 = permanent)")
	return cmd
}

func unblockCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unblock <ip>",
		Short: "Remove the active block for an IP address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}

			blocklist, _ := newServices(db)
			if err := blocklist.Unblock(cmd.Context(), args[0], "", "cli"); err != nil {
				return err
			}

			fmt.Printf("Unblocked %s\n", args[0])
			return nil
		},
	}
}

func blocksCmd() *cobra.Command {
	var (
		all   bool
		limit int
	)

	cmd := &cobra.Command{
		Use:   "blocks",
		Short: "List blocked IP addresses",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}

			query := dto.BlockedIPListQuery{Page: 1, Limit: limit}
			if !all {
				active := true
				query.Active = &active
			}

			blocklist, _ := newServices(db)
			resp, err := blocklist.List(cmd.Context(), query)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "IP\tREASON\tACTIVE\tATTEMPTS\tEXPIRES")
			for _, r := range resp.Records {
				expiry := "never"
				if r.ExpiresAt != nil {
					expiry = r.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Fprintf(w, "%s\t%s\t%t\t%d\t%s\n", r.IPAddress, r.Reason, r.IsActive, r.AttemptCount, expiry)
			}
			fmt.Fprintf(w, "\n%d of %d shown\n", len(resp.Records), resp.Total)
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "include inactive records")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows (1-100)")
	return cmd
}

func logsCmd() *cobra.Command {
	var (
		eventType string
		limit     int
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent security log entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB()
			if err != nil {
				return err
			}

			_, securityLog := newServices(db)
			resp, err := securityLog.List(cmd.Context(), dto.SecurityLogQuery{
				EventType: eventType,
				Page:      1,
				Limit:     limit,
			})
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tEVENT\tSEVERITY\tIP\tDESCRIPTION")
			for _, entry := range resp.Logs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					entry.CreatedAt.Format(time.RFC3339), entry.EventType, entry.Severity,
					entry.IPAddress, strings.ReplaceAll(entry.Description, "\t", " "))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&eventType, "type", "", "filter by event type")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows (1-100)")
	return cmd
}
